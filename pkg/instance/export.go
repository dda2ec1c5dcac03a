package instance

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// Archive entry names within an instance export tar.
const (
	exportEntryManifest = "instance.json"
	exportConfFileDir   = "conffiles/"
	exportVolumeDir     = "volumes/"
)

// exportManifest is the export archive's header entry: everything needed to
// recreate an instance's vault record plus the archive's own correlation
// id, so two exports of the same instance state are distinguishable even if
// byte-identical otherwise.
type exportManifest struct {
	Name         string              `json:"name"`
	AppKey       id.AppKey           `json:"appKey"`
	DeploymentID id.DeploymentID     `json:"deploymentId"`
	Config       vault.InstanceConfig `json:"config"`
	ArchiveID    string              `json:"archiveId"`
}

// Export streams instanceID's config, conffiles, and volumes to w as a tar
// archive (spec.md §8 Testable Property 9: export then import round trips
// byte-for-byte). The container itself is not exported; Import recreates it
// fresh on Start.
func (m *Manager) Export(ctx context.Context, instanceID id.InstanceID, w io.Writer) error {
	inst, ok := m.lookup(instanceID)
	if !ok {
		return flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}

	driver, err := m.driverFor(inst.DeploymentID)
	if err != nil {
		return err
	}

	archiveID, err := uuid.NewRandom()
	if err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, "generate export archive id", err)
	}

	tw := tar.NewWriter(w)
	defer tw.Close()

	manifestData, err := json.Marshal(exportManifest{
		Name:         inst.Name,
		AppKey:       inst.AppKey,
		DeploymentID: inst.DeploymentID,
		Config:       inst.Config,
		ArchiveID:    archiveID.String(),
	})
	if err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, "marshal export manifest", err)
	}
	if err := writeTarEntry(tw, exportEntryManifest, manifestData); err != nil {
		return err
	}

	if m.confBase != "" {
		for _, cf := range inst.Config.ConfigFiles {
			hostPath := filepath.Join(m.confBase, instanceID.String(), "conf", cf.HostFileName)
			content, err := os.ReadFile(hostPath)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("read conffile %s for export", cf.HostFileName), err)
			}
			if err := writeTarEntry(tw, exportConfFileDir+cf.HostFileName, content); err != nil {
				return err
			}
		}
	}

	for logical, volumeName := range inst.Config.Volumes {
		if err := exportVolumeEntry(ctx, tw, driver, logical, volumeName); err != nil {
			return err
		}
	}

	return nil
}

func writeTarEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
	if err := tw.WriteHeader(hdr); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("write archive entry %s", name), err)
	}
	if _, err := tw.Write(content); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("write archive entry %s", name), err)
	}
	return nil
}

// exportVolumeEntry buffers one volume's exported tar.gz into memory so its
// size is known up front; the driver-level export already produced a
// gzipped stream, so this entry is opaque bytes from the tar writer's point
// of view.
func exportVolumeEntry(ctx context.Context, tw *tar.Writer, driver volumeExporter, logical, volumeName string) error {
	pr, pw := io.Pipe()
	errCh := make(chan error, 1)
	go func() {
		errCh <- driver.ExportVolume(ctx, volumeName, pw)
		pw.Close()
	}()

	data, readErr := io.ReadAll(pr)
	if exportErr := <-errCh; exportErr != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("export volume %s", logical), exportErr)
	}
	if readErr != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("buffer exported volume %s", logical), readErr)
	}

	return writeTarEntry(tw, exportVolumeDir+logical+".tar.gz", data)
}

// volumeExporter is the narrow slice of deployment.Driver export needs,
// named separately so tests can stub it without the whole Driver surface.
type volumeExporter interface {
	ExportVolume(ctx context.Context, name string, w io.Writer) error
}

// Import reads an archive produced by Export and recreates its instance
// under a freshly allocated id, stopped and not yet started (spec.md §8
// Testable Property 9). deploymentID selects which deployment the restored
// instance is created against.
func (m *Manager) Import(ctx context.Context, r io.Reader, deploymentID id.DeploymentID) (id.InstanceID, error) {
	driver, err := m.driverFor(deploymentID)
	if err != nil {
		return 0, err
	}

	tr := tar.NewReader(r)

	var man *exportManifest
	volumes := map[string][]byte{}
	conffiles := map[string][]byte{}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, flecserr.Because(flecserr.KindRuntimeFailure, "read import archive", err)
		}

		content, err := io.ReadAll(tr)
		if err != nil {
			return 0, flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("read archive entry %s", hdr.Name), err)
		}

		switch {
		case hdr.Name == exportEntryManifest:
			var parsed exportManifest
			if err := json.Unmarshal(content, &parsed); err != nil {
				return 0, flecserr.Because(flecserr.KindMalformedRequest, "decode import manifest", err)
			}
			man = &parsed
		case len(hdr.Name) > len(exportConfFileDir) && hdr.Name[:len(exportConfFileDir)] == exportConfFileDir:
			conffiles[hdr.Name[len(exportConfFileDir):]] = content
		case len(hdr.Name) > len(exportVolumeDir) && hdr.Name[:len(exportVolumeDir)] == exportVolumeDir:
			logical := hdr.Name[len(exportVolumeDir) : len(hdr.Name)-len(".tar.gz")]
			volumes[logical] = content
		}
	}

	if man == nil {
		return 0, flecserr.New(flecserr.KindMalformedRequest, "import archive missing instance manifest entry")
	}

	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to persist instance pouch after import")
		}
	}()

	var instanceID id.InstanceID
	for {
		fresh, err := id.NewInstanceID()
		if err != nil {
			return 0, flecserr.Because(flecserr.KindRuntimeFailure, "generate instance id for import", err)
		}
		if _, taken := g.Instances.Get(fresh.String()); !taken {
			instanceID = fresh
			break
		}
	}

	cfg := man.Config
	cfg.Volumes = make(map[string]string, len(man.Config.Volumes))
	for logical := range man.Config.Volumes {
		volumeName := fmt.Sprintf("flecs-%s-%s", instanceID, logical)
		if err := driver.CreateVolume(ctx, volumeName); err != nil {
			return 0, flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("create volume %s for import", logical), err)
		}
		if data, ok := volumes[logical]; ok {
			if err := driver.ImportVolume(ctx, volumeName, bytes.NewReader(data)); err != nil {
				return 0, flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("import volume %s", logical), err)
			}
		}
		cfg.Volumes[logical] = volumeName
	}

	if m.confBase != "" {
		for _, cf := range cfg.ConfigFiles {
			content, ok := conffiles[cf.HostFileName]
			if !ok {
				continue
			}
			hostPath := filepath.Join(m.confBase, instanceID.String(), "conf", cf.HostFileName)
			if err := os.MkdirAll(filepath.Dir(hostPath), 0o755); err != nil {
				return 0, flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("stage conffile directory for %s", cf.HostFileName), err)
			}
			if err := os.WriteFile(hostPath, content, 0o644); err != nil {
				return 0, flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("restore conffile %s", cf.HostFileName), err)
			}
		}
	}

	inst := vault.Instance{
		ID:           instanceID,
		Name:         man.Name,
		AppKey:       man.AppKey,
		DeploymentID: deploymentID,
		Desired:      vault.DesiredStopped,
		Status:       vault.StatusNotCreated,
		Config:       cfg,
	}
	g.Instances.Put(instanceID.String(), inst)

	return instanceID, nil
}
