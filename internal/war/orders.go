package war

import (
	"time"

	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
)

// targetValueSlot is where the upstream puts a task's planet index.
const targetValueSlot = 2

// TargetPlanetIndex returns the planet a task points at. Tasks with too few
// values have no target.
func TargetPlanetIndex(task model.Task) (int, bool) {
	if len(task.Values) <= targetValueSlot {
		return 0, false
	}
	return int(task.Values[targetValueSlot]), true
}

// AssociateTaskPlanets filters catalog down to the order's target planets and
// sets each one's task progress from the positionally matching progress entry.
// Progress entries beyond the task list are ignored.
func AssociateTaskPlanets(order model.MajorOrder, catalog []model.Planet) []model.Planet {
	targets := make(map[int]bool)
	for _, task := range order.Setting.Tasks {
		if idx, ok := TargetPlanetIndex(task); ok {
			targets[idx] = true
		}
	}

	taskPlanets := make([]model.Planet, 0, len(targets))
	for _, p := range catalog {
		if targets[p.Index] {
			p.TaskProgress = nil
			taskPlanets = append(taskPlanets, p)
		}
	}

	tasks := order.Setting.Tasks
	for i, progress := range order.Progress {
		if i >= len(tasks) {
			break
		}
		idx, ok := TargetPlanetIndex(tasks[i])
		if !ok {
			continue
		}
		for j := range taskPlanets {
			if taskPlanets[j].Index == idx {
				v := progress
				taskPlanets[j].TaskProgress = &v
			}
		}
	}
	return taskPlanets
}

// NewMajorOrderStatus builds the published view of an order fetched at fetchedAt.
func NewMajorOrderStatus(order model.MajorOrder, catalog []model.Planet, fetchedAt time.Time) model.MajorOrderStatus {
	return model.MajorOrderStatus{
		Order:       order,
		TaskPlanets: AssociateTaskPlanets(order, catalog),
		ExpiresAt:   fetchedAt.Add(time.Duration(order.ExpiresIn) * time.Second).UTC(),
	}
}
