// Package abi loads the tracker contract ABI from a Hardhat artifact or the
// built-in definition.
package abi

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/sirupsen/logrus"
)

// GetABIDir returns the base directory for ABI files
// Checks environment variable ABI_DIR first, then uses defaults
func GetABIDir() string {
	if abiDir := os.Getenv("ABI_DIR"); abiDir != "" {
		return abiDir
	}

	defaultPaths := []string{
		"./abi",    // Local development
		"/app/abi", // Docker image
	}

	for _, path := range defaultPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "./abi"
}

// ResolveABIPath resolves the full path to an ABI file. Absolute paths are
// returned unchanged.
func ResolveABIPath(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(GetABIDir(), filename)
}

// HardhatArtifact represents a Hardhat compilation artifact
type HardhatArtifact struct {
	Format       string          `json:"_format"`
	ContractName string          `json:"contractName"`
	SourceName   string          `json:"sourceName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode,omitempty"`
}

// LoadABI loads an ABI from file using standardized path resolution
// Supports both raw ABI JSON files and Hardhat artifact files
func LoadABI(filename string) (abi.ABI, error) {
	abiPath := ResolveABIPath(filename)

	logrus.WithField("path", abiPath).Debug("Loading ABI file")

	data, err := os.ReadFile(abiPath)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read ABI file %s: %w", abiPath, err)
	}

	return ParseABI(data, abiPath)
}

// ParseABI parses raw ABI JSON or a Hardhat artifact. source is only used in
// log lines and errors.
func ParseABI(data []byte, source string) (abi.ABI, error) {
	var artifact HardhatArtifact
	if err := json.Unmarshal(data, &artifact); err == nil && artifact.Format != "" {
		logrus.WithFields(logrus.Fields{
			"path":         source,
			"contractName": artifact.ContractName,
			"format":       artifact.Format,
		}).Debug("Detected Hardhat artifact, extracting ABI")

		parsedABI, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse ABI from Hardhat artifact %s: %w", source, err)
		}
		return parsedABI, nil
	}

	parsedABI, err := abi.JSON(strings.NewReader(string(data)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI from %s (not a Hardhat artifact or valid ABI): %w", source, err)
	}

	logrus.WithFields(logrus.Fields{
		"path":    source,
		"methods": len(parsedABI.Methods),
		"events":  len(parsedABI.Events),
	}).Debug("Successfully loaded raw ABI")

	return parsedABI, nil
}

// LoadTrackerABI loads the provenance tracker ABI. An empty filename selects
// the built-in definition. A file must declare every method the relay calls.
func LoadTrackerABI(filename string) (abi.ABI, error) {
	var (
		parsed abi.ABI
		err    error
	)
	if filename == "" {
		parsed, err = ParseABI([]byte(TrackerABI), "builtin:ProvenanceTracker")
	} else {
		parsed, err = LoadABI(filename)
	}
	if err != nil {
		return abi.ABI{}, err
	}

	for _, method := range TrackerMethods {
		if _, ok := parsed.Methods[method]; !ok {
			return abi.ABI{}, fmt.Errorf("tracker ABI is missing method %s", method)
		}
	}
	return parsed, nil
}

// TrackerMethods lists the contract methods the relay depends on
var TrackerMethods = []string{"addStage", "getStageIds", "getStageData", "getStageMeta"}

// TrackerABI is the call/return contract of the provenance tracker
const TrackerABI = `[
	{
		"inputs": [
			{"internalType": "string", "name": "productId", "type": "string"},
			{"internalType": "string", "name": "eventId", "type": "string"},
			{"internalType": "string[]", "name": "keyValuePairs", "type": "string[]"},
			{"internalType": "string", "name": "comments", "type": "string"},
			{"internalType": "string", "name": "mediaIpfs", "type": "string"}
		],
		"name": "addStage",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "string", "name": "productId", "type": "string"}
		],
		"name": "getStageIds",
		"outputs": [
			{"internalType": "string[]", "name": "", "type": "string[]"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "string", "name": "productId", "type": "string"},
			{"internalType": "string", "name": "eventId", "type": "string"}
		],
		"name": "getStageData",
		"outputs": [
			{"internalType": "string[]", "name": "", "type": "string[]"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "string", "name": "productId", "type": "string"},
			{"internalType": "string", "name": "eventId", "type": "string"}
		],
		"name": "getStageMeta",
		"outputs": [
			{"internalType": "string", "name": "comments", "type": "string"},
			{"internalType": "string", "name": "mediaIpfs", "type": "string"},
			{"internalType": "uint256", "name": "timestamp", "type": "uint256"},
			{"internalType": "address", "name": "submitter", "type": "address"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`
