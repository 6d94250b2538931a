package main

import "github.com/spf13/viper"

// newViper builds a viper.Viper reading configFilePath if set. A
// missing --config flag is not an error: config.Load falls back to
// spec.md §6.5's documented defaults.
func newViper() (*viper.Viper, error) {
	v := viper.New()
	if configFilePath == "" {
		return v, nil
	}
	v.SetConfigFile(configFilePath)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v, nil
}
