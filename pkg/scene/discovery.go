package scene

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	presetPrefix = "preset:"
	presetExt    = ".terrain"
)

// presetDirs are searched in order; the first one that exists is used
var presetDirs = []string{"scenes", "../scenes"}

// SceneInfo represents a discovered scene with its metadata
type SceneInfo struct {
	ID          string `json:"id"`          // Unique identifier, passed to New
	Name        string `json:"name"`        // Scene name
	DisplayName string `json:"displayName"` // UI display name
	Description string `json:"description"` // Optional description
	Group       string `json:"group"`       // Grouping category
	Type        string `json:"type"`        // "builtin" or "preset"
	FilePath    string `json:"filePath"`    // Path to preset file (preset type only)
	Variant     string `json:"variant"`     // Variant name (optional)
}

// SceneGroup represents a group of related scenes
type SceneGroup struct {
	Name   string      `json:"name"`
	Scenes []SceneInfo `json:"scenes"`
}

// ScenesResponse represents the complete response for /api/scenes
type ScenesResponse struct {
	Groups []SceneGroup `json:"groups"`
}

// ListPresetScenes scans the scenes directory and returns discovered preset files
func ListPresetScenes() ([]SceneInfo, error) {
	var scenesDir string
	for _, path := range presetDirs {
		if _, err := os.Stat(path); err == nil {
			scenesDir = path
			break
		}
	}

	if scenesDir == "" {
		return []SceneInfo{}, nil
	}
	return ListPresetScenesIn(scenesDir)
}

// ListPresetScenesIn returns the preset scenes found in dir, sorted by display name
func ListPresetScenesIn(dir string) ([]SceneInfo, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+presetExt))
	if err != nil {
		return nil, fmt.Errorf("failed to scan scenes directory: %w", err)
	}

	scenes := []SceneInfo{}
	for _, filePath := range files {
		sceneInfo, err := ParsePresetMetadata(filePath)
		if err != nil {
			// Log warning but continue processing other files
			fmt.Printf("Warning: failed to parse metadata for %s: %v\n", filePath, err)
			continue
		}
		scenes = append(scenes, sceneInfo)
	}

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].DisplayName < scenes[j].DisplayName
	})

	return scenes, nil
}

// ParsePresetMetadata extracts metadata from the header comments of a preset file.
// A missing file yields the fallback values derived from the file name.
func ParsePresetMetadata(filePath string) (SceneInfo, error) {
	filename := filepath.Base(filePath)
	nameWithoutExt := strings.TrimSuffix(filename, filepath.Ext(filename))

	sceneInfo := SceneInfo{
		ID:          presetPrefix + nameWithoutExt,
		Name:        titleCase(nameWithoutExt),
		DisplayName: titleCase(nameWithoutExt),
		Group:       "Presets",
		Type:        "preset",
		FilePath:    filePath,
	}

	file, err := os.Open(filePath)
	if err != nil {
		return sceneInfo, nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Metadata lives only in the leading comment block
		if !strings.HasPrefix(line, "#") {
			break
		}
		content, ok := strings.CutPrefix(line, "# ")
		if !ok {
			continue
		}

		switch {
		case strings.HasPrefix(content, "Scene:"):
			sceneInfo.Name = strings.TrimSpace(strings.TrimPrefix(content, "Scene:"))
		case strings.HasPrefix(content, "Variant:"):
			sceneInfo.Variant = strings.TrimSpace(strings.TrimPrefix(content, "Variant:"))
		case strings.HasPrefix(content, "Description:"):
			sceneInfo.Description = strings.TrimSpace(strings.TrimPrefix(content, "Description:"))
		case strings.HasPrefix(content, "Group:"):
			sceneInfo.Group = strings.TrimSpace(strings.TrimPrefix(content, "Group:"))
		}
	}

	if sceneInfo.Variant != "" {
		sceneInfo.DisplayName = fmt.Sprintf("%s - %s", sceneInfo.Name, sceneInfo.Variant)
	} else {
		sceneInfo.DisplayName = sceneInfo.Name
	}

	return sceneInfo, scanner.Err()
}

// ListAllScenes returns both built-in and preset scenes, grouped by category
func ListAllScenes() (ScenesResponse, error) {
	var response ScenesResponse

	presets, err := ListPresetScenes()
	if err != nil {
		return response, fmt.Errorf("failed to list preset scenes: %w", err)
	}

	allScenes := append(ListBuiltinScenes(), presets...)

	groupMap := make(map[string][]SceneInfo)
	for _, scene := range allScenes {
		groupMap[scene.Group] = append(groupMap[scene.Group], scene)
	}

	// Built-in first, then alphabetical
	var groupNames []string
	for groupName := range groupMap {
		if groupName != builtinGroup {
			groupNames = append(groupNames, groupName)
		}
	}
	sort.Strings(groupNames)

	if group, exists := groupMap[builtinGroup]; exists {
		response.Groups = append(response.Groups, SceneGroup{Name: builtinGroup, Scenes: group})
	}
	for _, groupName := range groupNames {
		response.Groups = append(response.Groups, SceneGroup{Name: groupName, Scenes: groupMap[groupName]})
	}

	return response, nil
}

// titleCase converts a filename-style string to title case
// e.g., "mountain-pass" -> "Mountain Pass"
func titleCase(s string) string {
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")

	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}

	return strings.Join(words, " ")
}
