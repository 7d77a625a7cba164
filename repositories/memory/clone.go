package memory

import (
	"time"

	"team-tasks/backend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func cloneID(id *primitive.ObjectID) *primitive.ObjectID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	return append([]primitive.ObjectID{}, ids...)
}

func cloneNotification(n models.Notification) models.Notification {
	n.TaskID = cloneID(n.TaskID)
	return n
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Team = cloneID(u.Team)
	c.Tasks = cloneIDs(u.Tasks)
	c.AssignedTasks = cloneIDs(u.AssignedTasks)
	c.Notifications = make([]models.Notification, len(u.Notifications))
	for i, n := range u.Notifications {
		c.Notifications[i] = cloneNotification(n)
	}
	return &c
}

func cloneTeam(t *models.Team) *models.Team {
	c := *t
	c.Members = cloneIDs(t.Members)
	return &c
}

func cloneTask(t *models.Task) *models.Task {
	c := *t
	c.AssignedTo = cloneID(t.AssignedTo)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.Tags = append([]string{}, t.Tags...)
	return &c
}

func cloneDetails(d map[string]interface{}) map[string]interface{} {
	c := make(map[string]interface{}, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

func without(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func sameIDs(a, b []primitive.ObjectID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
