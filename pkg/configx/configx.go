package configx

import (
	"fmt"
	"log"
	"os"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/marcodd23/go-sqlite-bridge/pkg/validator"
)

const defaultConfigBaseName = "property"

// LoadConfigForEnv - load the property[-<ENV>].yaml file from the working directory.
func LoadConfigForEnv(config Config) error {
	return ReadConfiguration(getEnvPropertyFileName(defaultConfigBaseName), config)
}

// LoadConfigFromPathForEnv - search the property-<ENV> properties in the given search path (for ex. "./config" )
func LoadConfigFromPathForEnv(searchPath string, config Config) error {
	if searchPath == "" {
		return LoadConfigForEnv(config)
	}

	searchPath = strings.TrimSuffix(searchPath, "/")

	return ReadConfiguration(getEnvPropertyFileName(fmt.Sprintf("%s/%s", searchPath, defaultConfigBaseName)), config)
}

// ReadConfiguration reads the configuration from the file and environment
// variables, then validates the result.
func ReadConfiguration(configFilePath string, config Config) error {
	viper.SetConfigFile(configFilePath) // Specify the file to read
	viper.SetConfigType("yaml")         // Specify the config file type (yaml)
	viper.AutomaticEnv()                // Enable automatic environment variable binding

	// Replace dots in keys with underscores in environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// Attempt to read the configuration file
	if err := viper.ReadInConfig(); err == nil {
		log.Printf("Reading configuration from config file: %s. Set environment variables OVERRIDE these values.", configFilePath)
	} else {
		log.Println("No configuration file found, reading configuration from environment variables.")
	}

	// Unmarshal the configuration into the provided struct
	if err := viper.Unmarshal(config); err != nil {
		return pkgerrors.Wrap(err, "unable to decode into config struct")
	}

	if valErrors := validator.NewValidator().ValidateStruct(config); len(valErrors) > 0 {
		return pkgerrors.Wrap(validator.NewValidationError(valErrors), "invalid bridge configuration")
	}

	return nil
}

func getEnvPropertyFileName(baseFileName string) string {
	env := strings.ToUpper(os.Getenv("ENVIRONMENT"))
	if !checkIfLocalEnv(env) {
		return fmt.Sprintf("%s-%s.yaml", baseFileName, strings.ToLower(env))
	}

	return fmt.Sprintf("%s.yaml", baseFileName)
}

func checkIfLocalEnv(env string) bool {
	if env == strings.ToUpper("DEV") || env == strings.ToUpper("STAGE") || env == strings.ToUpper("PROD") {
		return false
	}

	return true
}
