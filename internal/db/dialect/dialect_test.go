package dialect

import "testing"

func TestIsPostgres(t *testing.T) {
	if !IsPostgres(PGX) {
		t.Error("expected pgx to be postgres")
	}
	if IsPostgres(SQLite3) {
		t.Error("expected sqlite3 to not be postgres")
	}
}

func TestSerialPK(t *testing.T) {
	if SerialPK(SQLite3) != "INTEGER PRIMARY KEY AUTOINCREMENT" {
		t.Errorf("sqlite: got %q", SerialPK(SQLite3))
	}
	if SerialPK(PGX) != "BIGSERIAL PRIMARY KEY" {
		t.Errorf("pgx: got %q", SerialPK(PGX))
	}
}

func TestLike(t *testing.T) {
	if Like(SQLite3) != "LIKE" {
		t.Errorf("sqlite: got %q", Like(SQLite3))
	}
	if Like(PGX) != "ILIKE" {
		t.Errorf("pgx: got %q", Like(PGX))
	}
}
