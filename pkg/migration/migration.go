// Package migration implements the legacy-data import described in
// spec.md §4.7: detect pre-vault JSON files at conventional paths, back
// them up, and transform their contents into the current App/Instance
// shapes before the world starts normally. Grounded on lazydocker's own
// tolerant-decode-then-warn pattern for reading external state
// (pkg/commands/docker.go's container/service refresh, which never treats
// a missing or malformed record as fatal), generalized into "skip and log
// the unrecoverable record, keep going".
package migration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/usb"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// legacyApp is the pre-vault apps.json record shape.
type legacyApp struct {
	AppKey  string `json:"appKey"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// legacyUSB is the pre-vault USB binding shape, carrying only the port: its
// bus/device numbers are considered stale and must be refreshed against the
// live kernel view during migration (spec.md §4.7 step 3).
type legacyUSB struct {
	Port string `json:"port"`
}

// legacyInstance is the pre-vault docker/compose instance record shape,
// common to both legacy deployment kinds.
type legacyInstance struct {
	InstanceID string      `json:"instanceId"`
	AppKey     string      `json:"appKey"`
	Version    string      `json:"version"`
	Name       string      `json:"name"`
	Running    bool        `json:"running"`
	USBDevices []legacyUSB `json:"usbDevices"`
}

// Paths names the conventional legacy file locations under a base path
// (spec.md §4.7 "deployment/docker.json, deployment/compose.json,
// apps/apps.json").
type Paths struct {
	DockerInstances  string
	ComposeInstances string
	Apps             string
	BackupDir        string
}

// DefaultPaths derives the legacy layout from a base path.
func DefaultPaths(basePath string) Paths {
	return Paths{
		DockerInstances:  filepath.Join(basePath, "deployment", "docker.json"),
		ComposeInstances: filepath.Join(basePath, "deployment", "compose.json"),
		Apps:             filepath.Join(basePath, "apps", "apps.json"),
		BackupDir:        filepath.Join(basePath, "migration-backup"),
	}
}

// Needed reports whether either legacy deployment file exists (spec.md
// §4.7 "If either deployment file exists, the migration branch runs").
func Needed(paths Paths) bool {
	return fileExists(paths.DockerInstances) || fileExists(paths.ComposeInstances)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Migrator performs the one-shot legacy import into a Vault.
type Migrator struct {
	log       *logrus.Entry
	dockerDep id.DeploymentID
	composeDep id.DeploymentID
	usbReader usb.Reader
}

// NewMigrator builds a Migrator. dockerDeploymentID/composeDeploymentID name
// the default deployments legacy Single/Multi apps are attributed to
// (spec.md §4.7 step 2 "the default deployment (docker for Single, compose
// for Multi)").
func NewMigrator(log *logrus.Entry, dockerDeploymentID, composeDeploymentID id.DeploymentID, usbReader usb.Reader) *Migrator {
	return &Migrator{log: log, dockerDep: dockerDeploymentID, composeDep: composeDeploymentID, usbReader: usbReader}
}

// Run executes the migration against v, backing up legacy files first and
// deleting them only once every step succeeds (spec.md §4.7 steps 1–4).
// Unexpected failure leaves the legacy files in place and logs; it never
// prevents the caller from starting the world afterward (step 5).
func (m *Migrator) Run(v *vault.Vault, paths Paths) error {
	if err := m.backup(paths); err != nil {
		m.log.WithError(err).Error("failed to back up legacy migration files, leaving them in place")
		return err
	}

	devices, err := m.usbReader.Read()
	if err != nil {
		m.log.WithError(err).Warn("failed to enumerate usb devices during migration; bindings will show as undetected")
		devices = map[string]usb.Device{}
	}

	if err := m.migrateApps(v, paths.Apps); err != nil {
		m.log.WithError(err).Error("failed to migrate legacy apps, leaving legacy files in place")
		return err
	}
	if err := m.migrateInstances(v, paths.DockerInstances, m.dockerDep, devices); err != nil {
		m.log.WithError(err).Error("failed to migrate legacy docker instances, leaving legacy files in place")
		return err
	}
	if err := m.migrateInstances(v, paths.ComposeInstances, m.composeDep, devices); err != nil {
		m.log.WithError(err).Error("failed to migrate legacy compose instances, leaving legacy files in place")
		return err
	}

	m.cleanup(paths)
	return nil
}

func (m *Migrator) backup(paths Paths) error {
	stamp := filepath.Join(paths.BackupDir, backupSubdir())
	if err := os.MkdirAll(stamp, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	for _, src := range []string{paths.DockerInstances, paths.ComposeInstances, paths.Apps} {
		if !fileExists(src) {
			continue
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("read %s for backup: %w", src, err)
		}
		dst := filepath.Join(stamp, filepath.Base(src))
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("write backup %s: %w", dst, err)
		}
	}
	return nil
}

// backupSubdir names this run's backup directory. Time-based in
// production; tests supply their own BackupDir so this only needs to be
// unique, not reproducible.
func backupSubdir() string {
	return fmt.Sprintf("run-%d", time.Now().UnixNano())
}

func (m *Migrator) migrateApps(v *vault.Vault, path string) error {
	if !fileExists(path) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var legacy []legacyApp
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	g := v.Grab(vault.NewReservation().WithApps(vault.ModeWrite).WithManifests(vault.ModeRead))
	defer func() { _ = g.Close() }()

	for _, la := range legacy {
		appKey := id.AppKey{Name: la.AppKey, Version: la.Version}
		if _, ok := g.Manifests.Get(appKey.String()); !ok {
			m.log.WithField("app", appKey).Warn("skipping legacy app: manifest not recoverable")
			continue
		}
		g.Apps.Put(appKey.String(), vault.App{
			Key:     appKey,
			Desired: desiredFromLegacyStatus(la.Status),
		})
	}
	return nil
}

func desiredFromLegacyStatus(status string) vault.DesiredStatus {
	if status == "installed" || status == "" {
		return vault.DesiredInstalled
	}
	return vault.DesiredNotInstalled
}

func (m *Migrator) migrateInstances(v *vault.Vault, path string, deploymentID id.DeploymentID, devices map[string]usb.Device) error {
	if !fileExists(path) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var legacy []legacyInstance
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	g := v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite))
	defer func() { _ = g.Close() }()

	for _, li := range legacy {
		instanceID, err := id.ParseInstanceID(li.InstanceID)
		if err != nil {
			m.log.WithField("raw", li.InstanceID).WithError(err).Warn("skipping legacy instance: id not parseable")
			continue
		}

		cfg := vault.NewInstanceConfig()
		for _, lu := range li.USBDevices {
			binding := vault.USBBinding{Port: lu.Port}
			if dev, ok := devices[lu.Port]; ok {
				binding.Bus = dev.Bus
				binding.Device = dev.Device
			}
			cfg.USB = append(cfg.USB, binding)
		}

		desired := vault.DesiredStopped
		status := vault.StatusStopped
		if li.Running {
			desired = vault.DesiredRunning
			status = vault.StatusUnknown
		}

		g.Instances.Put(instanceID.String(), vault.Instance{
			ID:           instanceID,
			Name:         li.Name,
			AppKey:       id.AppKey{Name: li.AppKey, Version: li.Version},
			DeploymentID: deploymentID,
			Desired:      desired,
			Status:       status,
			Config:       cfg,
		})
	}
	return nil
}

func (m *Migrator) cleanup(paths Paths) {
	for _, p := range []string{paths.DockerInstances, paths.ComposeInstances, paths.Apps} {
		if !fileExists(p) {
			continue
		}
		if err := os.Remove(p); err != nil {
			m.log.WithError(err).WithField("path", p).Warn("failed to delete legacy migration file after successful migration")
		}
	}
}
