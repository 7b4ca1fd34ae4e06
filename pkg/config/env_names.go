package config

// EnvPrefix scopes every configuration variable read by envconfig.
const EnvPrefix = "TRAILMARKS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "TRAILMARKS_DB_DSN"
	EnvDBHost = "TRAILMARKS_DB_HOST"
	EnvDBUser = "TRAILMARKS_DB_USER"
	EnvDBName = "TRAILMARKS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
