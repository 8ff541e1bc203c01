package model

import "strings"

// Setting keys understood by the service.
const (
	SettingActiveProvider   = "active_provider"
	SettingStorageEnabled   = "storage_enabled"
	SettingStorageEndpoint  = "storage_external"
	SettingStorageBucket    = "storage_bucket"
	SettingStorageAccessKey = "storage_access_key"
	SettingStorageSecretKey = "storage_secret_key"
)

var StorageSettingKeys = []string{
	SettingStorageEnabled,
	SettingStorageEndpoint,
	SettingStorageBucket,
	SettingStorageAccessKey,
	SettingStorageSecretKey,
}

// IsSecretSetting reports keys whose values must never be echoed back.
func IsSecretSetting(key string) bool {
	return strings.HasSuffix(key, "_api_key") || strings.HasSuffix(key, "_secret_key") || strings.HasSuffix(key, "_access_key")
}

// StorageSettings is the effective object storage configuration.
type StorageSettings struct {
	Enabled   bool
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

// Usable reports whether relocation can run with these settings.
func (s StorageSettings) Usable() bool {
	return s.Enabled && s.Endpoint != "" && s.Bucket != "" && s.AccessKey != "" && s.SecretKey != ""
}
