// Package docker implements deployment.Driver against the Docker Engine API
// using docker/docker's client package, the same client lazydocker wraps
// (pkg/commands/docker.go). Grounded on that file's client construction and
// container/image/network/volume call shapes, adapted from a read-mostly
// TUI data source into a command driver that creates and mutates containers
// on the core's behalf.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	units "github.com/docker/go-units"
	"github.com/sirupsen/logrus"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/deployment"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
)

const apiVersion = "1.43"

// volumeHelperImage is the minimal image used to stage a volume for
// export/import via tar, the same "run a minimal image, tar the mount" trick the
// original's docker_cli backs its own volume commands with.
const volumeHelperImage = "alpine"

// Driver implements deployment.Driver against a local Docker daemon.
type Driver struct {
	log    *logrus.Entry
	client *dockerclient.Client
}

// New connects to the Docker daemon at the given host (empty string means
// the default platform socket), pinned to apiVersion the way lazydocker
// pins APIVersion in pkg/commands/docker.go.
func New(log *logrus.Entry, host string) (*Driver, error) {
	opts := []dockerclient.Opt{
		dockerclient.FromEnv,
		dockerclient.WithVersion(apiVersion),
	}
	if host != "" {
		opts = append(opts, dockerclient.WithHost(host))
	}
	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, flecserr.Because(flecserr.KindRuntimeFailure, "connect to docker daemon", err)
	}
	return &Driver{log: log, client: cli}, nil
}

func (d *Driver) Close() error { return d.client.Close() }

func (d *Driver) CreateContainer(ctx context.Context, spec deployment.CreateSpec) (string, error) {
	exposedPorts, portBindings := buildPortTables(spec.Ports)

	var envs []string
	for _, e := range spec.Env {
		envs = append(envs, e.String())
	}

	var labels map[string]string
	if len(spec.Labels) > 0 {
		labels = make(map[string]string, len(spec.Labels))
		for _, l := range spec.Labels {
			if l.Value != nil {
				labels[l.Name] = *l.Value
			} else {
				labels[l.Name] = ""
			}
		}
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        toBinds(spec.Mounts),
	}
	for _, cap := range spec.Capabilities {
		hostConfig.CapAdd = append(hostConfig.CapAdd, string(cap))
	}

	resp, err := d.client.ContainerCreate(ctx, &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Args,
		Env:          envs,
		Labels:       labels,
		ExposedPorts: exposedPorts,
		Hostname:     spec.Hostname,
	}, hostConfig, &network.NetworkingConfig{}, nil, spec.ContainerName)
	if err != nil {
		return "", flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("create container %s", spec.ContainerName), err)
	}
	return resp.ID, nil
}

func (d *Driver) StartContainer(ctx context.Context, containerID string) error {
	if err := d.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("start container %s", containerID), err)
	}
	return nil
}

func (d *Driver) StopContainer(ctx context.Context, containerID string, timeout *int) error {
	opts := container.StopOptions{Timeout: timeout}
	if err := d.client.ContainerStop(ctx, containerID, opts); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("stop container %s", containerID), err)
	}
	return nil
}

func (d *Driver) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force, RemoveVolumes: false})
	if err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("remove container %s", containerID), err)
	}
	return nil
}

func (d *Driver) InspectContainer(ctx context.Context, containerID string) (deployment.ContainerStatus, error) {
	info, err := d.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return deployment.ContainerStatus{}, flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("inspect container %s", containerID), err)
	}
	status := deployment.ContainerStatus{ID: info.ID, State: deployment.StatusUnknown}
	if info.State != nil {
		status.Running = info.State.Running
		status.ExitCode = &info.State.ExitCode
		status.State = deployment.StatusFromRuntimeState(info.State.Status)
		if info.State.Health != nil {
			healthy := info.State.Health.Status == "healthy"
			status.Healthy = &healthy
		}
	}
	return status, nil
}

func (d *Driver) ContainerLogs(ctx context.Context, containerID string, stdout, stderr bool) (io.ReadCloser, error) {
	rc, err := d.client.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: stdout, ShowStderr: stderr})
	if err != nil {
		return nil, flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("read logs for container %s", containerID), err)
	}
	return rc, nil
}

func (d *Driver) CopyIntoContainer(ctx context.Context, containerID, destPath string, tarStream io.Reader) error {
	if err := d.client.CopyToContainer(ctx, containerID, destPath, tarStream, container.CopyToContainerOptions{}); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("copy into container %s at %s", containerID, destPath), err)
	}
	return nil
}

func (d *Driver) CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error) {
	rc, _, err := d.client.CopyFromContainer(ctx, containerID, srcPath)
	if err != nil {
		return nil, flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("copy %s out of container %s", srcPath, containerID), err)
	}
	return rc, nil
}

func (d *Driver) PullImage(ctx context.Context, ref string, onProgress func(status string)) error {
	reader, err := d.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("pull image %s", ref), err)
	}
	defer reader.Close()
	return drainPullProgress(reader, onProgress)
}

func (d *Driver) PullImageWithToken(ctx context.Context, ref, token string, onProgress func(status string)) error {
	reader, err := d.client.ImagePull(ctx, ref, image.PullOptions{RegistryAuth: token})
	if err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("pull image %s with registry token", ref), err)
	}
	defer reader.Close()
	return drainPullProgress(reader, onProgress)
}

func drainPullProgress(r io.Reader, onProgress func(string)) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 && onProgress != nil {
			onProgress(string(buf[:n]))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return flecserr.Because(flecserr.KindRuntimeFailure, "read image pull progress", err)
		}
	}
}

func (d *Driver) RemoveImage(ctx context.Context, ref string, force bool) error {
	_, err := d.client.ImageRemove(ctx, ref, image.RemoveOptions{Force: force})
	if err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("remove image %s", ref), err)
	}
	return nil
}

func (d *Driver) HasImage(ctx context.Context, ref string) (bool, error) {
	_, err := d.client.ImageInspect(ctx, ref)
	if err == nil {
		return true, nil
	}
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	return false, flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("inspect image %s", ref), err)
}

func (d *Driver) ImageSize(ctx context.Context, ref string) (int64, error) {
	info, err := d.client.ImageInspect(ctx, ref)
	if err != nil {
		return 0, flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("inspect image %s for size", ref), err)
	}
	d.log.WithField("image", ref).WithField("size", units.HumanSize(float64(info.Size))).Debug("queried image size on disk")
	return info.Size, nil
}

func (d *Driver) ExportImage(ctx context.Context, ref string, w io.Writer) error {
	rc, err := d.client.ImageSave(ctx, []string{ref})
	if err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("export image %s", ref), err)
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("write exported image %s", ref), err)
	}
	return nil
}

func (d *Driver) ImportImage(ctx context.Context, r io.Reader) error {
	resp, err := d.client.ImageLoad(ctx, r)
	if err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, "import image", err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, "drain image import response", err)
	}
	return nil
}

// CopyFromImage stages ref as a throwaway, never-started container so
// srcPath can be copied out of it, then discards the container (spec.md
// §4.3 "copy-path-out-of-image").
func (d *Driver) CopyFromImage(ctx context.Context, ref, srcPath string) (io.ReadCloser, error) {
	resp, err := d.client.ContainerCreate(ctx, &container.Config{Image: ref}, &container.HostConfig{}, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return nil, flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("stage container for image %s", ref), err)
	}
	rc, _, copyErr := d.client.CopyFromContainer(ctx, resp.ID, srcPath)
	if removeErr := d.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); removeErr != nil {
		d.log.WithError(removeErr).WithField("container", resp.ID).Warn("failed to remove staging container after image copy-out")
	}
	if copyErr != nil {
		return nil, flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("copy %s out of image %s", srcPath, ref), copyErr)
	}
	return rc, nil
}

func (d *Driver) CreateNetwork(ctx context.Context, cfg deployment.NetworkConfig) (string, error) {
	ipamConfig := []network.IPAMConfig{{Subnet: cfg.CIDR, Gateway: cfg.Gateway}}
	opts := network.CreateOptions{
		Driver: string(driverNameFor(cfg.Kind)),
		IPAM:   &network.IPAM{Config: ipamConfig},
	}
	if cfg.Parent != "" {
		opts.Options = map[string]string{"parent": cfg.Parent}
	}
	resp, err := d.client.NetworkCreate(ctx, cfg.Name, opts)
	if err != nil {
		return "", flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("create network %s", cfg.Name), err)
	}
	return resp.ID, nil
}

func driverNameFor(kind deployment.NetworkKind) deployment.NetworkKind {
	if kind == "" {
		return deployment.NetworkBridge
	}
	return kind
}

func (d *Driver) InspectNetwork(ctx context.Context, name string) (deployment.NetworkInfo, error) {
	info, err := d.client.NetworkInspect(ctx, name, network.InspectOptions{})
	if err != nil {
		return deployment.NetworkInfo{}, flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("inspect network %s", name), err)
	}
	return deployment.NetworkInfo{ID: info.ID, Name: info.Name, Driver: info.Driver}, nil
}

func (d *Driver) ListNetworks(ctx context.Context) ([]deployment.NetworkInfo, error) {
	list, err := d.client.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return nil, flecserr.Because(flecserr.KindRuntimeFailure, "list networks", err)
	}
	out := make([]deployment.NetworkInfo, 0, len(list))
	for _, n := range list {
		out = append(out, deployment.NetworkInfo{ID: n.ID, Name: n.Name, Driver: n.Driver})
	}
	return out, nil
}

func (d *Driver) RemoveNetwork(ctx context.Context, name string) error {
	if err := d.client.NetworkRemove(ctx, name); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("remove network %s", name), err)
	}
	return nil
}

func (d *Driver) ConnectNetwork(ctx context.Context, containerID, networkName, ip string) error {
	settings := &network.EndpointSettings{}
	if ip != "" {
		settings.IPAMConfig = &network.EndpointIPAMConfig{IPv4Address: ip}
	}
	if err := d.client.NetworkConnect(ctx, networkName, containerID, settings); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("connect %s to network %s", containerID, networkName), err)
	}
	return nil
}

func (d *Driver) DisconnectNetwork(ctx context.Context, containerID, networkName string) error {
	if err := d.client.NetworkDisconnect(ctx, networkName, containerID, false); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("disconnect %s from network %s", containerID, networkName), err)
	}
	return nil
}

func (d *Driver) CreateVolume(ctx context.Context, name string) error {
	_, err := d.client.VolumeCreate(ctx, volume.CreateOptions{Name: name})
	if err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("create volume %s", name), err)
	}
	return nil
}

func (d *Driver) InspectVolume(ctx context.Context, name string) (deployment.VolumeInfo, error) {
	v, err := d.client.VolumeInspect(ctx, name)
	if err != nil {
		return deployment.VolumeInfo{}, flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("inspect volume %s", name), err)
	}
	return deployment.VolumeInfo{Name: v.Name, Driver: v.Driver, Mountpoint: v.Mountpoint, Labels: v.Labels}, nil
}

func (d *Driver) RemoveVolume(ctx context.Context, name string, force bool) error {
	if err := d.client.VolumeRemove(ctx, name, force); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("remove volume %s", name), err)
	}
	return nil
}

// ExportVolume tars up a volume's contents by running a throwaway helper
// container with the volume mounted read-only and streaming `tar`'s stdout
// straight to w. Docker's client has no API verb for this; the original's
// docker_cli subprocess precedent is the closest analog, so this driver
// shells out the same way CopyConfigFile does (spec.md §4.3 "volume …
// export").
func (d *Driver) ExportVolume(ctx context.Context, name string, w io.Writer) error {
	cmd := exec.CommandContext(ctx, "docker", "run", "--rm",
		"-v", name+":/flecs-volume:ro",
		volumeHelperImage, "tar", "-czf", "-", "-C", "/flecs-volume", ".")
	cmd.Stdout = w
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("export volume %s: %s", name, stderr.String()), err)
	}
	return nil
}

// ImportVolume is ExportVolume's inverse: it streams r into `tar -x` running
// inside a helper container with the volume mounted read-write.
func (d *Driver) ImportVolume(ctx context.Context, name string, r io.Reader) error {
	cmd := exec.CommandContext(ctx, "docker", "run", "--rm", "-i",
		"-v", name+":/flecs-volume",
		volumeHelperImage, "tar", "-xzf", "-", "-C", "/flecs-volume")
	cmd.Stdin = r
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("import volume %s: %s", name, stderr.String()), err)
	}
	return nil
}

// CopyConfigFile writes content into containerID at destPath via the docker
// CLI binary ("docker cp"), one of the three operations this driver performs
// by subprocess instead of through the API client, alongside ExportVolume and
// ImportVolume (lazydocker precedent:
// pkg/commands/os.go shells out for OS-level operations the Go client
// doesn't cover cleanly).
func (d *Driver) CopyConfigFile(ctx context.Context, containerID string, destPath string, content []byte) error {
	tmp, err := os.CreateTemp("", "flecsd-conffile-*")
	if err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, "stage config file for copy", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return flecserr.Because(flecserr.KindRuntimeFailure, "write staged config file", err)
	}
	if err := tmp.Close(); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, "close staged config file", err)
	}

	cmd := exec.CommandContext(ctx, "docker", "cp", tmp.Name(), containerID+":"+destPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("docker cp %s: %s", destPath, string(out)), err)
	}
	return nil
}

func toBinds(mounts []deployment.MountPoint) []string {
	binds := make([]string, 0, len(mounts))
	for _, m := range mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", m.Source, m.Target, mode))
	}
	return binds
}
