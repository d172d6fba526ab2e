package leveldata

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lafriks/go-tiled"
)

// DefaultArena is the embedded arena used when none is configured.
const DefaultArena = "default"

//go:embed arenas/*.tmx
var embedded embed.FS

// Embedded returns the arenas bundled with the binary.
func Embedded() fs.FS {
	return embedded
}

// LoadArena parses a TMX file. Rectangles in the "Solids" object group become
// static colliders; objects in the "Bodies" group become replicated bodies.
// It takes an fs.FS so callers can pass the embedded arenas or os.DirFS.
func LoadArena(fsys fs.FS, tmxPath string) (*ArenaData, error) {
	m, err := tiled.LoadFile(tmxPath, tiled.WithFileSystem(fsys))
	if err != nil {
		return nil, fmt.Errorf("load TMX %s: %w", tmxPath, err)
	}

	data := &ArenaData{
		Name:   strings.TrimSuffix(filepath.Base(tmxPath), ".tmx"),
		Width:  m.Width * m.TileWidth,
		Height: m.Height * m.TileHeight,
	}

	for _, og := range m.ObjectGroups {
		switch og.Name {
		case "Solids":
			for _, o := range og.Objects {
				if o.Width <= 0 || o.Height <= 0 {
					continue
				}
				data.Solids = append(data.Solids, SolidRect{X: o.X, Y: o.Y, W: o.Width, H: o.Height})
			}
		case "Bodies":
			for _, o := range og.Objects {
				b := BodySpawn{
					Name:     o.Name,
					Kind:     o.Properties.GetString("kind"),
					X:        o.X,
					Y:        o.Y,
					W:        o.Width,
					H:        o.Height,
					Z:        o.Properties.GetFloat("z"),
					VX:       o.Properties.GetFloat("vx"),
					VY:       o.Properties.GetFloat("vy"),
					VZ:       o.Properties.GetFloat("vz"),
					SpinX:    o.Properties.GetFloat("spinX"),
					SpinY:    o.Properties.GetFloat("spinY"),
					SpinZ:    o.Properties.GetFloat("spinZ"),
					MoveX:    o.Properties.GetFloat("moveX"),
					MoveY:    o.Properties.GetFloat("moveY"),
					Duration: o.Properties.GetFloat("duration"),
				}
				if b.Kind == "" {
					b.Kind = KindDynamic
				}
				if b.Kind != KindDynamic && b.Kind != KindMover {
					return nil, fmt.Errorf("%s: body %q has unknown kind %q", tmxPath, o.Name, b.Kind)
				}
				if b.W <= 0 || b.H <= 0 {
					return nil, fmt.Errorf("%s: body %q has no size", tmxPath, o.Name)
				}
				data.Bodies = append(data.Bodies, b)
			}
		}
	}

	return data, nil
}

// ListArenas discovers all .tmx files in dir within fsys and returns their
// stem names sorted.
func ListArenas(fsys fs.FS, dir string) ([]string, error) {
	pattern := dir + "/*.tmx"
	matches, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no .tmx files found in %s", dir)
	}

	names := make([]string, 0, len(matches))
	for _, path := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(path), ".tmx"))
	}
	sort.Strings(names)
	return names, nil
}

// Resolve loads an arena by embedded name or by path to a .tmx file on disk.
func Resolve(arena string) (*ArenaData, error) {
	if arena == "" {
		arena = DefaultArena
	}
	if strings.HasSuffix(arena, ".tmx") {
		dir, file := filepath.Split(arena)
		if dir == "" {
			dir = "."
		}
		return LoadArena(os.DirFS(dir), file)
	}

	data, err := LoadArena(embedded, "arenas/"+arena+".tmx")
	if err != nil {
		names, _ := ListArenas(embedded, "arenas")
		return nil, fmt.Errorf("arena %q (available: %s): %w", arena, strings.Join(names, ", "), err)
	}
	return data, nil
}
