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
package utils

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

var DoNotPrompt bool

func AskPrompt(args ...string) bool {
	if DoNotPrompt {
		return true
	}
	var input string
	argsLen := len(args)

	for i := 0; i < argsLen; i++ {
		if i != argsLen-1 {
			fmt.Printf("%s ", args[i])
		} else {
			fmt.Printf("%s", args[i])
		}
	}
	fmt.Printf("? [Y/N]: ")

	_, err := fmt.Scan(&input)
	if err != nil {
		log.Infof("reading prompt answer: %v", err)
		return false
	}

	input = strings.ToUpper(strings.TrimSpace(input))
	return input == "Y" || input == "YES"
}

func FileOrFolderExists(path string) bool {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false
		} else {
			panic(err)
		}
	} else {
		return true
	}
}

func IsDirectoryEmpty(dir string) bool {
	files, _ := filepath.Glob(dir + "/*")
	return len(files) == 0
}

// CleanDir removes the entries of dir, except the ones named in keep.
func CleanDir(dir string, keep ...string) error {
	if !FileOrFolderExists(dir) {
		return nil
	}
	files, err := filepath.Glob(dir + "/*")
	if err != nil {
		return fmt.Errorf("list files in %q: %w", dir, err)
	}
	log.Infof("cleaning directory: %s", dir)
	for _, file := range files {
		if lo.Contains(keep, filepath.Base(file)) {
			continue
		}
		err := os.RemoveAll(file)
		if err != nil {
			return fmt.Errorf("clean dir %q: %w", dir, err)
		}
	}
	return nil
}

func IsQuotedString(str string) bool {
	return len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"'
}

// SetDifference returns the elements of a which are not present in b.
func SetDifference(a, b []string) []string {
	return lo.Filter(a, func(s string, _ int) bool {
		return !lo.Contains(b, s)
	})
}

func ContainsAnySubstringFromSlice(slice []string, s string) bool {
	for _, ele := range slice {
		if strings.Contains(s, ele) {
			return true
		}
	}
	return false
}

func CsvStringToSlice(str string) []string {
	result := strings.Split(str, ",")
	for i := range result {
		result[i] = strings.TrimSpace(result[i])
	}
	return lo.Filter(result, func(s string, _ int) bool { return s != "" })
}

// GetRedactedURLs masks the password of every postgres URI in the list.
// Strings that don't parse as URLs are replaced as a whole.
func GetRedactedURLs(urlList []string) []string {
	result := []string{}
	for _, u := range urlList {
		obj, err := url.Parse(u)
		if err != nil || obj.Scheme == "" {
			result = append(result, "XXX")
			continue
		}
		if _, hasPassword := obj.User.Password(); hasPassword {
			obj.User = url.UserPassword(obj.User.Username(), "XXX")
		}
		query := obj.Query()
		if query.Has("password") {
			query.Set("password", "XXX")
			obj.RawQuery = query.Encode()
		}
		result = append(result, obj.String())
	}
	return result
}

// DatabaseNameFromURI returns the database name of a postgres URI, or "" if
// it cannot be determined.
func DatabaseNameFromURI(uri string) string {
	obj, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(obj.Path, "/")
}
