/*
Copyright 2025 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package spanneradmin

import (
	"fmt"
	"regexp"
)

var (
	validDBPattern     = regexp.MustCompile("^projects/(?P<project>[^/]+)/instances/(?P<instance>[^/]+)/databases/(?P<database>[^/]+)$")
	validBackupPattern = regexp.MustCompile("^projects/(?P<project>[^/]+)/instances/(?P<instance>[^/]+)/backups/(?P<backup>[^/]+)$")

	// A valid database ID is 2-30 characters long, starts with a lowercase
	// letter, ends with a letter or number and contains only lowercase
	// letters, numbers, underscores and hyphens.
	validDBIDPattern = regexp.MustCompile("^[a-z][a-z0-9_\\-]*[a-z0-9]$")
)

// DatabaseID identifies a database within an instance. All fields must be
// non-empty. A DatabaseID is a value and is never mutated after construction.
type DatabaseID struct {
	Project  string
	Instance string
	Database string
}

// Name returns the canonical resource path of the database, of the form
// projects/<project>/instances/<instance>/databases/<database>.
func (d DatabaseID) Name() string {
	return fmt.Sprintf("projects/%s/instances/%s/databases/%s", d.Project, d.Instance, d.Database)
}

// InstanceName returns the resource path of the instance containing the
// database.
func (d DatabaseID) InstanceName() string {
	return fmt.Sprintf("projects/%s/instances/%s", d.Project, d.Instance)
}

// ParseDatabaseName parses a database resource path as formatted by
// DatabaseID.Name. It is the inverse of Name: for any valid id,
// ParseDatabaseName(id.Name()) returns id.
func ParseDatabaseName(name string) (DatabaseID, error) {
	if !validDBPattern.MatchString(name) {
		return DatabaseID{}, fmt.Errorf("database name %q should conform to pattern %q",
			name, validDBPattern.String())
	}
	m := validDBPattern.FindStringSubmatch(name)
	return DatabaseID{Project: m[1], Instance: m[2], Database: m[3]}, nil
}

// BackupID identifies a backup within an instance. All fields must be
// non-empty. A BackupID is a value and is never mutated after construction.
type BackupID struct {
	Project  string
	Instance string
	Backup   string
}

// Name returns the canonical resource path of the backup, of the form
// projects/<project>/instances/<instance>/backups/<backup>.
func (b BackupID) Name() string {
	return fmt.Sprintf("projects/%s/instances/%s/backups/%s", b.Project, b.Instance, b.Backup)
}

// InstanceName returns the resource path of the instance containing the
// backup.
func (b BackupID) InstanceName() string {
	return fmt.Sprintf("projects/%s/instances/%s", b.Project, b.Instance)
}

// ParseBackupName parses a backup resource path as formatted by BackupID.Name.
func ParseBackupName(name string) (BackupID, error) {
	if !validBackupPattern.MatchString(name) {
		return BackupID{}, fmt.Errorf("backup name %q should conform to pattern %q",
			name, validBackupPattern.String())
	}
	m := validBackupPattern.FindStringSubmatch(name)
	return BackupID{Project: m[1], Instance: m[2], Backup: m[3]}, nil
}

// validDatabaseName reports whether db is a valid database resource path.
func validDatabaseName(db string) error {
	if matched := validDBPattern.MatchString(db); !matched {
		return fmt.Errorf("database name %q should conform to pattern %q",
			db, validDBPattern.String())
	}
	return nil
}
