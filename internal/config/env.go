package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

const (
	DefaultGasLimit      = 21000
	DefaultTokenGasLimit = 200000
	DefaultKMSLocation   = "asia-northeast1"
)

func GetEnvironment() string {
	return os.Getenv("APP_ENV")
}

func IsDevelopment() bool {
	return GetEnvironment() == "local" || GetEnvironment() == "development"
}

func GetLogLevel() string {
	return os.Getenv("LOG_LEVEL")
}

func MustGetGCPProjectID() string {
	gcpProjectID := os.Getenv("GCP_PROJECT_ID")
	if gcpProjectID == "" {
		panic("GCP_PROJECT_ID is not set")
	}

	return gcpProjectID
}

func MustGetKeyRingID() string {
	keyRingID := os.Getenv("KEY_RING_ID")
	if keyRingID == "" {
		panic("KEY_RING_ID is not set")
	}

	return keyRingID
}

func MustGetKMSKeyID() string {
	keyID := os.Getenv("KMS_KEY_ID")
	if keyID == "" {
		panic("KMS_KEY_ID is not set")
	}

	return keyID
}

func GetKMSLocation() string {
	location := os.Getenv("KMS_LOCATION")
	if location == "" {
		return DefaultKMSLocation
	}
	return location
}

func GetKMSKeyVersion() int {
	versionStr := os.Getenv("KMS_KEY_VERSION")
	if versionStr == "" {
		return 1
	}
	version, err := strconv.Atoi(versionStr)
	if err != nil || version < 1 {
		log.Error().Msg(fmt.Sprintf("config.GetKMSKeyVersion: invalid key version %q", versionStr))
		return 1
	}
	return version
}

// GetKMSKeyVersionName returns the fully qualified crypto key version resource name.
func GetKMSKeyVersionName() string {
	return fmt.Sprintf("projects/%s/locations/%s/keyRings/%s/cryptoKeys/%s/cryptoKeyVersions/%d",
		MustGetGCPProjectID(), GetKMSLocation(), MustGetKeyRingID(), MustGetKMSKeyID(), GetKMSKeyVersion())
}

func GetGasLimit() uint64 {
	return getUint64("GAS_LIMIT", DefaultGasLimit)
}

func GetTokenGasLimit() uint64 {
	return getUint64("TOKEN_GAS_LIMIT", DefaultTokenGasLimit)
}

func GetCredentialFilePath() string {
	return os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
}

func GetMetricsAddr() string {
	return os.Getenv("METRICS_ADDR")
}

func getUint64(key string, def uint64) uint64 {
	str := os.Getenv(key)
	if str == "" {
		return def
	}
	v, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		log.Error().Msg(fmt.Sprintf("config.getUint64: failed to parse %s: %v", key, err.Error()))
		return def
	}
	return v
}
