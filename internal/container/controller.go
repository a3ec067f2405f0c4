// Package container owns the lifecycle of the Pi-hole container. No other
// component issues container engine calls.
package container

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"

	"github.com/piholeup/piholeup/internal/config"
)

// dockerClient is the slice of the Docker SDK this package needs.
type dockerClient interface {
	ContainerList(ctx context.Context, options containertypes.ListOptions) ([]containertypes.Summary, error)
	ContainerCreate(ctx context.Context, config *containertypes.Config, hostConfig *containertypes.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (containertypes.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options containertypes.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options containertypes.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options containertypes.RemoveOptions) error
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
}

// Artifact describes the container instance with the reserved name,
// independent of whether it is currently running.
type Artifact struct {
	ID      string
	Name    string
	Running bool
}

// Controller creates, starts, stops, and removes the ad-blocking container.
type Controller struct {
	cli    dockerClient
	cfg    *config.Config
	logger zerolog.Logger
}

func NewController(cli dockerClient, cfg *config.Config, logger zerolog.Logger) *Controller {
	return &Controller{cli: cli, cfg: cfg, logger: logger}
}

// FindArtifact queries the engine for the container with the reserved name.
// Returns nil when no such container exists, running or not. State is always
// re-derived here, never cached.
func (c *Controller) FindArtifact(ctx context.Context) (*Artifact, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("name", c.cfg.Pihole.ContainerName)

	containers, err := c.cli.ContainerList(ctx, containertypes.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	// The name filter is a substring match; insist on the exact name.
	want := "/" + c.cfg.Pihole.ContainerName
	for _, summary := range containers {
		for _, name := range summary.Names {
			if name == want {
				return &Artifact{
					ID:      summary.ID,
					Name:    c.cfg.Pihole.ContainerName,
					Running: strings.EqualFold(summary.State, "running"),
				}, nil
			}
		}
	}
	return nil, nil
}

// Deploy creates and starts a fresh container. A stale stopped artifact with
// the reserved name is removed first: port mappings from a previous run are
// not trusted. User data volumes are bind mounts and survive removal.
func (c *Controller) Deploy(ctx context.Context) (*Artifact, error) {
	existing, err := c.FindArtifact(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Running {
			return nil, fmt.Errorf("container %s is already running", existing.Name)
		}
		c.logger.Info().Str("container", existing.Name).Msg("Removing stale container before fresh deploy")
		if err := c.Remove(ctx, existing.Name); err != nil {
			return nil, fmt.Errorf("removing stale container: %w", err)
		}
	}

	c.logger.Info().Str("image", c.cfg.Pihole.Image).Msg("Pulling image")
	reader, err := c.cli.ImagePull(ctx, c.cfg.Pihole.Image, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("pulling image %s: %w", c.cfg.Pihole.Image, err)
	}
	// Drain the pull stream; the pull only completes once it is consumed.
	_, _ = io.Copy(io.Discard, reader)
	_ = reader.Close()

	portMap, exposed, err := c.portBindings()
	if err != nil {
		return nil, err
	}

	containerCfg := &containertypes.Config{
		Image:        c.cfg.Pihole.Image,
		Env:          c.env(),
		ExposedPorts: exposed,
	}
	hostCfg := &containertypes.HostConfig{
		PortBindings: portMap,
		Binds: []string{
			c.cfg.PiholeVolume() + ":/etc/pihole",
			c.cfg.DnsmasqVolume() + ":/etc/dnsmasq.d",
		},
		RestartPolicy: containertypes.RestartPolicy{
			Name: containertypes.RestartPolicyUnlessStopped,
		},
	}

	created, err := c.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, c.cfg.Pihole.ContainerName)
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}

	if err := c.cli.ContainerStart(ctx, created.ID, containertypes.StartOptions{}); err != nil {
		// Do not leave a half-created artifact behind on a failed start.
		_ = c.cli.ContainerRemove(ctx, created.ID, containertypes.RemoveOptions{Force: true})
		return nil, fmt.Errorf("starting container: %w", err)
	}

	c.logger.Info().Str("container", c.cfg.Pihole.ContainerName).Str("id", created.ID).Msg("Container started")
	return &Artifact{ID: created.ID, Name: c.cfg.Pihole.ContainerName, Running: true}, nil
}

// Stop stops the named container. A missing or already-stopped container is
// a no-op.
func (c *Controller) Stop(ctx context.Context, name string) error {
	err := c.cli.ContainerStop(ctx, name, containertypes.StopOptions{})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("stopping container %s: %w", name, err)
	}
	return nil
}

// Remove deletes the named container. The bind-mounted volumes on the host
// are untouched. A missing container is a no-op.
func (c *Controller) Remove(ctx context.Context, name string) error {
	err := c.cli.ContainerRemove(ctx, name, containertypes.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("removing container %s: %w", name, err)
	}
	return nil
}

func (c *Controller) env() []string {
	tz := c.cfg.Pihole.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return []string{
		"WEBPASSWORD=" + c.cfg.Pihole.WebPassword,
		"DNSMASQ_LISTENING=all",
		"TZ=" + tz,
		"PIHOLE_DNS_=" + strings.Join(c.cfg.Pihole.UpstreamDNS, ";"),
	}
}

// portBindings publishes DNS (tcp+udp) and the web UI on loopback only.
func (c *Controller) portBindings() (nat.PortMap, nat.PortSet, error) {
	loopback := c.cfg.Proxy.ListenAddress
	dnsPort := strconv.Itoa(c.cfg.Pihole.DNSPort)
	webPort := strconv.Itoa(c.cfg.Pihole.WebPort)

	specs := []struct {
		containerPort string
		hostPort      string
	}{
		{"53/tcp", dnsPort},
		{"53/udp", dnsPort},
		{"80/tcp", webPort},
	}

	portMap := nat.PortMap{}
	exposed := nat.PortSet{}
	for _, spec := range specs {
		port, err := nat.NewPort(strings.Split(spec.containerPort, "/")[1], strings.Split(spec.containerPort, "/")[0])
		if err != nil {
			return nil, nil, fmt.Errorf("building port %s: %w", spec.containerPort, err)
		}
		exposed[port] = struct{}{}
		portMap[port] = []nat.PortBinding{{HostIP: loopback, HostPort: spec.hostPort}}
	}
	return portMap, exposed, nil
}
