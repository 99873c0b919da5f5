package creds

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// RobotCredentials holds the connection details for a Viam machine.
type RobotCredentials struct {
	Address  string `json:"address"`
	EntityID string `json:"entity_id"`
	APIKey   string `json:"api_key"`
}

// Load reads and parses robot credentials from a JSON file. An empty path
// falls back to the VIAM_MACHINE_ADDRESS, VIAM_API_KEY_ID and VIAM_API_KEY
// environment variables.
func Load(path string) (*RobotCredentials, error) {
	if path == "" {
		return fromEnv()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}
	var c RobotCredentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing credentials file: %w", err)
	}
	return &c, nil
}

func fromEnv() (*RobotCredentials, error) {
	c := RobotCredentials{
		Address:  os.Getenv("VIAM_MACHINE_ADDRESS"),
		EntityID: os.Getenv("VIAM_API_KEY_ID"),
		APIKey:   os.Getenv("VIAM_API_KEY"),
	}
	if c.Address == "" || c.EntityID == "" || c.APIKey == "" {
		return nil, errors.New("no credentials file given and VIAM_MACHINE_ADDRESS, VIAM_API_KEY_ID, VIAM_API_KEY are not all set")
	}
	return &c, nil
}
