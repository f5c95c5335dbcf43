// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package config

import (
	"fmt"

	"github.com/tomtom215/tablesnap/internal/validation"
)

// Validate checks struct tags first, then rules that span fields.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if c.Retry.InitialInterval > c.Retry.MaxInterval {
		return fmt.Errorf("RETRY_INITIAL_INTERVAL (%s) must not exceed RETRY_MAX_INTERVAL (%s)",
			c.Retry.InitialInterval, c.Retry.MaxInterval)
	}
	return nil
}

func (c *Config) validateRemote() error {
	switch c.Remote.Provider {
	case "drive":
		if c.Remote.Drive.FolderID == "" {
			return fmt.Errorf("DRIVE_FOLDER_ID is required when REMOTE_PROVIDER=drive")
		}
	case "s3":
		if c.Remote.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when REMOTE_PROVIDER=s3")
		}
		if (c.Remote.S3.AccessKey == "") != (c.Remote.S3.SecretKey == "") {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
		}
	case "local":
		if c.Remote.Local.Dir == "" {
			return fmt.Errorf("LOCAL_BACKUP_DIR is required when REMOTE_PROVIDER=local")
		}
		if c.Remote.Local.Dir == c.Backup.WorkDir {
			return fmt.Errorf("LOCAL_BACKUP_DIR must differ from BACKUP_WORK_DIR")
		}
	}
	return nil
}
