package services

import (
	"team-tasks/backend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func isAdmin(actor *models.User) bool {
	return actor.IsAdmin()
}

// canEdit allows the creator, the current assignee and admins.
func canEdit(actor *models.User, task *models.Task) bool {
	if actor == nil {
		return false
	}
	if isAdmin(actor) || task.Creator == actor.ID {
		return true
	}
	return task.AssignedTo != nil && *task.AssignedTo == actor.ID
}

func canDelete(actor *models.User, task *models.Task) bool {
	if actor == nil {
		return false
	}
	return isAdmin(actor) || task.Creator == actor.ID
}

func canViewTeam(actor *models.User, teamID primitive.ObjectID) bool {
	return isAdmin(actor) || actor.InTeam(teamID)
}
