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
package coupling

import (
	"bufio"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/pgshift/pgshift/src/constants"
)

const (
	CATEGORY_CLIENT_SDK     = "client_sdk"
	CATEGORY_PLATFORM_KEYS  = "platform_keys"
	CATEGORY_STORAGE        = "storage"
	CATEGORY_EDGE_FUNCTIONS = "edge_functions"
	CATEGORY_AUTH           = "auth"
	CATEGORY_REALTIME       = "realtime"

	// Impact levels. Level 1 couplings are mechanical to replace, level 3
	// ones need a replacement service.
	IMPACT_LEVEL_1 = "LEVEL_1"
	IMPACT_LEVEL_2 = "LEVEL_2"
	IMPACT_LEVEL_3 = "LEVEL_3"
)

type pattern struct {
	category string
	needle   string
}

var patterns = []pattern{
	{CATEGORY_CLIENT_SDK, "@supabase/supabase-js"},
	{CATEGORY_CLIENT_SDK, "from supabase import"},
	{CATEGORY_CLIENT_SDK, "github.com/supabase-community/"},
	{CATEGORY_CLIENT_SDK, "supabase.from("},
	{CATEGORY_CLIENT_SDK, "supabase.rpc("},
	{CATEGORY_PLATFORM_KEYS, "SUPABASE_ANON_KEY"},
	{CATEGORY_PLATFORM_KEYS, "SUPABASE_SERVICE_ROLE_KEY"},
	{CATEGORY_PLATFORM_KEYS, "SUPABASE_URL"},
	{CATEGORY_STORAGE, "supabase.storage"},
	{CATEGORY_STORAGE, "storage.objects"},
	{CATEGORY_STORAGE, "storage.buckets"},
	{CATEGORY_EDGE_FUNCTIONS, "supabase.functions.invoke"},
	{CATEGORY_EDGE_FUNCTIONS, "supabase/functions/"},
	{CATEGORY_AUTH, "supabase.auth"},
	{CATEGORY_AUTH, "auth.uid()"},
	{CATEGORY_AUTH, "auth.jwt()"},
	{CATEGORY_AUTH, "auth.users"},
	{CATEGORY_REALTIME, "supabase.channel("},
	{CATEGORY_REALTIME, "postgres_changes"},
	{CATEGORY_REALTIME, "supabase_realtime"},
}

var categoryImpact = map[string]string{
	CATEGORY_CLIENT_SDK:     IMPACT_LEVEL_1,
	CATEGORY_PLATFORM_KEYS:  IMPACT_LEVEL_1,
	CATEGORY_STORAGE:        IMPACT_LEVEL_2,
	CATEGORY_EDGE_FUNCTIONS: IMPACT_LEVEL_2,
	CATEGORY_AUTH:           IMPACT_LEVEL_3,
	CATEGORY_REALTIME:       IMPACT_LEVEL_3,
}

// thresholds per impact level: [moderate, high]
var (
	LEVEL_1_MODERATE_THRESHOLD = 20
	LEVEL_1_HIGH_THRESHOLD     = math.MaxInt32
	LEVEL_2_MODERATE_THRESHOLD = 1
	LEVEL_2_HIGH_THRESHOLD     = 20
	LEVEL_3_MODERATE_THRESHOLD = 1
	LEVEL_3_HIGH_THRESHOLD     = 10
)

var scannedExtensions = []string{
	".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs", ".vue", ".svelte",
	".py", ".go", ".rb", ".dart", ".kt", ".swift", ".sql", ".toml", ".env",
}

var skippedDirs = []string{"node_modules", ".git", "vendor", "dist", "build", ".next", ".venv", "__pycache__"}

// Scorer is the reference Auditor. It scans the source files under a
// project root for known platform coupling patterns.
type Scorer struct{}

func NewScorer() *Scorer {
	return &Scorer{}
}

func (s *Scorer) Audit(root string) (*Finding, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("audit %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("audit %s: not a directory", root)
	}

	f := &Finding{Root: root, Categories: map[string]int{}, Locations: map[string][]string{}}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && slices.Contains(skippedDirs, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isScanned(d.Name()) {
			return nil
		}
		return scanFile(root, path, f)
	})
	if err != nil {
		return nil, fmt.Errorf("audit %s: %w", root, err)
	}
	f.Tier, f.Rationale = tierFor(f.Categories)
	log.Infof("coupling audit of %s: %s", root, f)
	return f, nil
}

func isScanned(name string) bool {
	if strings.HasPrefix(name, ".env") {
		return true
	}
	return slices.Contains(scannedExtensions, strings.ToLower(filepath.Ext(name)))
}

func scanFile(root, path string, f *Finding) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for _, p := range patterns {
			if strings.Contains(line, p.needle) {
				f.Categories[p.category]++
				f.Locations[p.category] = append(f.Locations[p.category], fmt.Sprintf("%s:%d", rel, lineNo))
			}
		}
	}
	return scanner.Err()
}

// tierFor rates each impact level on its own; the tier is the worst of them.
func tierFor(categories map[string]int) (string, string) {
	if lo.Sum(lo.Values(categories)) == 0 {
		return constants.TIER_READY, "no platform coupling found"
	}
	counts := map[string]int{}
	for category, n := range categories {
		counts[categoryImpact[category]] += n
	}
	tiers := []string{
		tierForLevel(IMPACT_LEVEL_1, counts[IMPACT_LEVEL_1]),
		tierForLevel(IMPACT_LEVEL_2, counts[IMPACT_LEVEL_2]),
		tierForLevel(IMPACT_LEVEL_3, counts[IMPACT_LEVEL_3]),
	}
	tier := constants.TIER_LOW
	if slices.Contains(tiers, constants.TIER_HIGH) {
		tier = constants.TIER_HIGH
	} else if slices.Contains(tiers, constants.TIER_MODERATE) {
		tier = constants.TIER_MODERATE
	}
	rationale := fmt.Sprintf("level-1=%d, level-2=%d, level-3=%d occurrences",
		counts[IMPACT_LEVEL_1], counts[IMPACT_LEVEL_2], counts[IMPACT_LEVEL_3])
	return tier, rationale
}

func tierForLevel(level string, count int) string {
	var moderate, high int
	switch level {
	case IMPACT_LEVEL_1:
		moderate, high = LEVEL_1_MODERATE_THRESHOLD, LEVEL_1_HIGH_THRESHOLD
	case IMPACT_LEVEL_2:
		moderate, high = LEVEL_2_MODERATE_THRESHOLD, LEVEL_2_HIGH_THRESHOLD
	case IMPACT_LEVEL_3:
		moderate, high = LEVEL_3_MODERATE_THRESHOLD, LEVEL_3_HIGH_THRESHOLD
	default:
		panic(fmt.Sprintf("unknown impact level %q", level))
	}
	switch {
	case count >= high:
		return constants.TIER_HIGH
	case count >= moderate:
		return constants.TIER_MODERATE
	}
	return constants.TIER_LOW
}
