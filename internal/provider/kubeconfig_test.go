package provider

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleKubeconfig = `apiVersion: v1
kind: Config
clusters:
- name: lke4242
  cluster:
    server: https://4242.us-east.linodelke.net:443
contexts:
- name: lke4242-ctx
  context:
    cluster: lke4242
    user: lke4242-admin
current-context: lke4242-ctx
`

func TestDecodeKubeconfig(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(sampleKubeconfig))

	kc, err := DecodeKubeconfig(encoded)
	require.NoError(t, err)
	assert.Equal(t, sampleKubeconfig, kc)
}

func TestDecodeKubeconfig_BadBase64(t *testing.T) {
	_, err := DecodeKubeconfig("!!not base64!!")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode kubeconfig")
}

func TestDecodeKubeconfig_NoClusters(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("apiVersion: v1\nkind: Config\n"))

	_, err := DecodeKubeconfig(encoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no clusters")
}
