package provider

import (
	"encoding/base64"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeKubeconfig turns the provider's base64 payload into the kubeconfig
// text, rejecting payloads that are not a kubeconfig document.
func DecodeKubeconfig(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode kubeconfig: %w", err)
	}

	var doc struct {
		Kind     string `yaml:"kind"`
		Clusters []struct {
			Name string `yaml:"name"`
		} `yaml:"clusters"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("parse kubeconfig: %w", err)
	}
	if len(doc.Clusters) == 0 {
		return "", errors.New("parse kubeconfig: no clusters defined")
	}
	return string(raw), nil
}
