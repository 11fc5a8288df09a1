package constants

const (
	DatabaseTypeSQLite     = "sqlite"
	DatabaseTypeMySQL      = "mysql"
	DatabaseTypePostgreSQL = "postgresql"
)

const (
	DefaultMySQLPort      = "3306"
	DefaultPostgreSQLPort = "5432"
)

// ReadOnlyStatus is the advisory attestation of the engine-side posture of a
// connection. It is best effort: the SQL validator is the binding control.
const (
	ReadOnlyStatusReadOnly  = "readonly"
	ReadOnlyStatusReadWrite = "readwrite"
	ReadOnlyStatusUnknown   = "unknown"
)

// IsSupportedDatabaseType reports whether the gateway has a driver for the type.
func IsSupportedDatabaseType(dbType string) bool {
	switch dbType {
	case DatabaseTypeSQLite, DatabaseTypeMySQL, DatabaseTypePostgreSQL:
		return true
	}
	return false
}
