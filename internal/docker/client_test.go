package docker

import (
	"errors"
	"testing"

	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMemLimit(t *testing.T) {
	n, err := parseMemLimit("512m")
	require.NoError(t, err)
	assert.Equal(t, int64(512*1024*1024), n)

	n, err = parseMemLimit("1g")
	require.NoError(t, err)
	assert.Equal(t, int64(1024*1024*1024), n)
}

func TestParseMemLimit_Empty(t *testing.T) {
	n, err := parseMemLimit("")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParseMemLimit_Invalid(t *testing.T) {
	_, err := parseMemLimit("lots")
	assert.Error(t, err)
}

func TestIsPortConflict(t *testing.T) {
	assert.True(t, isPortConflict(errors.New(
		"Error response from daemon: driver failed programming external connectivity: Bind for 0.0.0.0:33060 failed: port is already allocated")))
	assert.True(t, isPortConflict(errors.New("listen tcp4 0.0.0.0:33060: bind: address already in use")))
	assert.False(t, isPortConflict(errors.New("No such image: mysql:9.9")))
	assert.False(t, isPortConflict(nil))
}

func TestFillNetworkInfo(t *testing.T) {
	ports := nat.PortMap{
		"3306/tcp":  []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "43306"}},
		"33060/tcp": nil,
	}
	networks := map[string]*network.EndpointSettings{
		"bridge": {IPAddress: "172.17.0.5", Gateway: "172.17.0.1"},
	}

	var info NetworkInfo
	fillNetworkInfo(&info, ports, networks)

	assert.Equal(t, 43306, info.HostPort)
	assert.Equal(t, "172.17.0.5", info.IPAddress)
	assert.Equal(t, "172.17.0.1", info.Gateway)
	assert.Equal(t, "3306/tcp->0.0.0.0:43306, 33060/tcp->unbound", info.Ports)
}

func TestFillNetworkInfo_CustomNetwork(t *testing.T) {
	networks := map[string]*network.EndpointSettings{
		"zeta":  {IPAddress: "10.0.9.2", Gateway: "10.0.9.1"},
		"alpha": {IPAddress: "10.0.1.2", Gateway: "10.0.1.1"},
	}

	var info NetworkInfo
	fillNetworkInfo(&info, nil, networks)

	assert.Zero(t, info.HostPort)
	assert.Equal(t, "10.0.1.2", info.IPAddress)
	assert.Equal(t, "none", info.Ports)
}

func TestFillNetworkInfo_SkipsEmptyEndpoints(t *testing.T) {
	networks := map[string]*network.EndpointSettings{
		"bridge": {},
		"other":  {IPAddress: "10.1.0.3", Gateway: "10.1.0.1"},
	}

	var info NetworkInfo
	fillNetworkInfo(&info, nil, networks)

	assert.Equal(t, "10.1.0.3", info.IPAddress)
	assert.Equal(t, "10.1.0.1", info.Gateway)
}
