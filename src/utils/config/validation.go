/*
Copyright (c) YugabyteDB, Inc.

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
package config

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/spf13/viper"
)

// ConfigValidationError holds all the invalid configurations detected
type ConfigValidationError struct {
	InvalidGlobalKeys   mapset.Set[string]
	InvalidSectionKeys  map[string]mapset.Set[string]
	InvalidSections     mapset.Set[string]
	ConflictingSections [][]string
}

// Error implements the error interface for ValidationError
func (e *ConfigValidationError) Error() string {
	var sb strings.Builder

	sb.WriteString("\nConfig file validation failed:\n")

	if e.InvalidGlobalKeys.Cardinality() > 0 {
		sb.WriteString(fmt.Sprintf("Invalid global config keys: [%s]\n", strings.Join(e.InvalidGlobalKeys.ToSlice(), ", ")))
	}

	for section, keys := range e.InvalidSectionKeys {
		sb.WriteString(fmt.Sprintf("Invalid keys in section '%s': [%s]\n", section, strings.Join(keys.ToSlice(), ", ")))
	}

	if e.InvalidSections.Cardinality() > 0 {
		sb.WriteString(fmt.Sprintf("Invalid sections: [%s]\n", strings.Join(e.InvalidSections.ToSlice(), ", ")))
	}

	for _, conflict := range e.ConflictingSections {
		sb.WriteString(fmt.Sprintf("Only one of the following sections can be used: [%s]\n", strings.Join(conflict, ", ")))
	}

	return sb.String()
}

// Allowed global config keys
var AllowedGlobalConfigKeys = mapset.NewThreadUnsafeSet[string](
	"work-dir", "log-level", "disable-pb", "app-schemas", "platform-roles",
)

// Allowed source config keys
var allowedSourceConfigKeys = mapset.NewThreadUnsafeSet[string](
	"uri",
)

// Allowed target config keys
var allowedTargetConfigKeys = mapset.NewThreadUnsafeSet[string](
	"uri", "extensions",
)

// Allowed migrate config keys
var allowedMigrateConfigKeys = mapset.NewThreadUnsafeSet[string](
	"log-level", "dry-run", "scope", "override-readiness", "project-root",
	"start-clean", "parallel-jobs", "disable-pb",
)

// Allowed validate config keys
var allowedValidateConfigKeys = mapset.NewThreadUnsafeSet[string](
	"log-level", "parallel-jobs",
)

// Allowed audit config keys
var allowedAuditConfigKeys = mapset.NewThreadUnsafeSet[string](
	"log-level", "project-root", "output", "show-locations",
)

// Allowed archive config keys
var allowedArchiveConfigKeys = mapset.NewThreadUnsafeSet[string](
	"log-level", "to",
)

// Allowed rollback config keys
var allowedRollbackConfigKeys = mapset.NewThreadUnsafeSet[string](
	"log-level",
)

// Define allowed nested sections
var AllowedConfigSections = map[string]mapset.Set[string]{
	"source":   allowedSourceConfigKeys,
	"target":   allowedTargetConfigKeys,
	"migrate":  allowedMigrateConfigKeys,
	"validate": allowedValidateConfigKeys,
	"audit":    allowedAuditConfigKeys,
	"archive":  allowedArchiveConfigKeys,
	"rollback": allowedRollbackConfigKeys,
}

// Define mutually exclusive section groups
var AliasCommandsPrefixes = [][]string{}

// ValidateConfigFile rejects unknown keys and sections in the config file
func ValidateConfigFile(v *viper.Viper) error {
	invalidGlobalKeys := mapset.NewThreadUnsafeSet[string]()
	invalidSectionKeys := make(map[string]mapset.Set[string])
	invalidSections := mapset.NewThreadUnsafeSet[string]()
	conflictingSections := [][]string{}
	presentSections := mapset.NewThreadUnsafeSet[string]()

	for _, key := range v.AllKeys() {
		parts := strings.Split(key, ".")
		if len(parts) == 1 {
			// Check global level keys
			if !AllowedGlobalConfigKeys.Contains(key) {
				invalidGlobalKeys.Add(key)
			}
		} else {
			// Validate section-based keys
			// The section is the first part of the key, the rest of the parts combined using "." are the nested key
			// For example: "a.b.c" -> section: "a", nestedKey: "b.c"
			section := parts[0]
			nestedKey := strings.Join(parts[1:], ".")
			presentSections.Add(section)

			allowedKeys, ok := AllowedConfigSections[section]
			if !ok {
				// Unknown section
				invalidSections.Add(section)
				continue
			}

			if !allowedKeys.Contains(nestedKey) {
				// Invalid key inside a known section
				if _, exists := invalidSectionKeys[section]; !exists {
					invalidSectionKeys[section] = mapset.NewThreadUnsafeSet[string]()
				}
				invalidSectionKeys[section].Add(nestedKey)
			}
		}
	}

	// Check for mutually exclusive section usage
	for _, group := range AliasCommandsPrefixes {
		var used []string
		for _, sec := range group {
			if presentSections.Contains(sec) {
				used = append(used, sec)
			}
		}
		if len(used) > 1 {
			conflictingSections = append(conflictingSections, used)
		}
	}

	// If invalid configurations exist, return a ValidationError
	if invalidGlobalKeys.Cardinality() > 0 || len(invalidSectionKeys) > 0 || invalidSections.Cardinality() > 0 || len(conflictingSections) > 0 {
		return &ConfigValidationError{
			InvalidGlobalKeys:   invalidGlobalKeys,
			InvalidSectionKeys:  invalidSectionKeys,
			InvalidSections:     invalidSections,
			ConflictingSections: conflictingSections,
		}
	}

	return nil
}
