package capture

import (
	"fmt"
	"image"

	"github.com/go-vgo/robotgo"
)

// RobotgoLister enumerates windows through robotgo's process and window
// introspection. robotgo exposes one app-level window per process with no
// stacking layer or opacity, so those fields are reported as the normal app
// layer; the heuristic filter still applies its title and geometry rules.
type RobotgoLister struct{}

func (RobotgoLister) Windows() ([]WindowDescriptor, error) {
	procs, err := robotgo.Process()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var out []WindowDescriptor
	for _, p := range procs {
		x, y, w, h := robotgo.GetBounds(p.Pid)
		if w <= 0 || h <= 0 {
			continue
		}
		title := robotgo.GetTitle(p.Pid)
		out = append(out, WindowDescriptor{
			ID:        uint64(p.Pid),
			OwnerName: p.Name,
			OwnerPID:  int(p.Pid),
			Title:     title,
			Bounds:    image.Rect(x, y, x+w, y+h),
			Layer:     0,
			Opacity:   1.0,
			OnScreen:  true,
		})
	}
	return out, nil
}
