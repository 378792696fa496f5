package scheduler

import (
	"github.com/google/uuid"
)

// Canvas geometry for DAG placement.
const (
	nodeWidth  = 220.0
	nodeHeight = 80.0
	hSpacing   = 120.0
	vSpacing   = 40.0
)

// PositionUpdate is one coordinate write the caller should persist.
type PositionUpdate struct {
	TaskID uuid.UUID `json:"task_id"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
}

// RecalculateDAGLayout computes canvas coordinates from plan levels:
// x from the level, y from the rank within the level. Only tasks that
// participate in at least one edge are placed; isolated tasks keep
// whatever position they had. Writes with unchanged coordinates are
// omitted.
func RecalculateDAGLayout(g *TaskGraph) ([]PositionUpdate, error) {
	plan, err := BuildExecutionPlan(g)
	if err != nil {
		return nil, err
	}

	var updates []PositionUpdate
	for _, level := range plan.Levels {
		rank := 0
		for _, t := range level.Tasks {
			if len(t.Dependencies) == 0 && len(t.Dependents) == 0 {
				continue
			}
			x := float64(level.Level) * (nodeWidth + hSpacing)
			y := float64(rank) * (nodeHeight + vSpacing)
			rank++

			task, _ := g.Task(t.TaskID)
			if task.DagPositionX != nil && task.DagPositionY != nil &&
				*task.DagPositionX == x && *task.DagPositionY == y {
				continue
			}
			updates = append(updates, PositionUpdate{TaskID: t.TaskID, X: x, Y: y})
		}
	}
	return updates, nil
}
