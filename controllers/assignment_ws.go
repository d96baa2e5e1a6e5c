package controller

import (
	"log"
	"time"

	"github.com/gofiber/websocket/v2"

	"cdmsuite/config"
	"cdmsuite/models"
)

type assignmentProgress struct {
	AssignmentID  uint   `json:"assignment_id"`
	Status        string `json:"status"`
	CurrentStep   int    `json:"current_step"`
	TotalSteps    int    `json:"total_steps"`
	Percent       int    `json:"percent"`
	EmailsSent    int    `json:"emails_sent"`
	EmailsOpened  int    `json:"emails_opened"`
	EmailsClicked int    `json:"emails_clicked"`
	EmailsReplied int    `json:"emails_replied"`
}

// HandleAssignmentProgressWS streams live progress for one assignment. The
// client sends {"assignment_id": N, "action": "watch"} and receives a
// snapshot every poll interval until the run reaches a terminal status or
// the connection drops.
func HandleAssignmentProgressWS(c *websocket.Conn) {
	defer c.Close()

	var input struct {
		AssignmentID uint   `json:"assignment_id"`
		Action       string `json:"action"`
	}

	if err := c.ReadJSON(&input); err != nil {
		log.Printf("Error reading JSON: %v", err)
		return
	}
	if input.Action != "watch" || input.AssignmentID == 0 {
		return
	}

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		var assignment models.SequenceAssignment
		if err := config.DB.Preload("Sequence").First(&assignment, input.AssignmentID).Error; err != nil {
			log.Printf("Assignment %d not found for progress stream: %v", input.AssignmentID, err)
			return
		}

		totalSteps := len(assignment.Sequence.ActiveSteps())
		percent := 0
		if totalSteps > 0 {
			percent = assignment.StepsCompleted() * 100 / totalSteps
		}

		progress := assignmentProgress{
			AssignmentID:  assignment.ID,
			Status:        assignment.Status,
			CurrentStep:   assignment.StepsCompleted(),
			TotalSteps:    totalSteps,
			Percent:       percent,
			EmailsSent:    assignment.EmailsSent,
			EmailsOpened:  assignment.EmailsOpened,
			EmailsClicked: assignment.EmailsClicked,
			EmailsReplied: assignment.EmailsReplied,
		}

		if err := c.WriteJSON(progress); err != nil {
			log.Printf("Error writing JSON: %v", err)
			return
		}

		switch assignment.Status {
		case models.AssignmentStatusCompleted, models.AssignmentStatusCancelled:
			return
		}

		<-ticker.C
	}
}
