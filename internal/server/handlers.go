package server

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/copp1723/swarm-sub001/internal/engine"
	"github.com/copp1723/swarm-sub001/internal/store"
)

type createTaskRequest struct {
	TaskDescription  string               `json:"task_description"`
	Agents           []engine.AgentConfig `json:"agents"`
	WorkingDirectory string               `json:"working_directory"`
	Sequential       bool                 `json:"sequential"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Error:   "invalid request body: " + err.Error(),
		})
		return
	}

	result := s.deps.Engine.Execute(c.Request.Context(), engine.ExecuteRequest{
		TaskDescription:  req.TaskDescription,
		Agents:           req.Agents,
		WorkingDirectory: req.WorkingDirectory,
		Sequential:       req.Sequential,
	})
	if !result.Accepted {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Error: result.Error})
		return
	}

	c.JSON(http.StatusAccepted, APIResponse{
		Success: true,
		Data:    gin.H{"task_id": result.TaskID},
	})
}

// taskSummary is the compact shape used by the list endpoint.
type taskSummary struct {
	TaskID       string       `json:"task_id"`
	Status       store.Status `json:"status"`
	Progress     int          `json:"progress"`
	CurrentPhase string       `json:"current_phase"`
	StartTime    time.Time    `json:"start_time"`
	EndTime      *time.Time   `json:"end_time,omitempty"`
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.deps.Store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{Success: false, Error: err.Error()})
		return
	}

	summaries := make([]taskSummary, 0, len(tasks))
	for _, task := range tasks {
		summaries = append(summaries, taskSummary{
			TaskID:       task.TaskID,
			Status:       task.Status,
			Progress:     task.Progress,
			CurrentPhase: task.CurrentPhase,
			StartTime:    task.StartTime,
			EndTime:      task.EndTime,
		})
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: gin.H{"tasks": summaries}})
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.deps.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrTaskNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, APIResponse{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: task})
}

// communicationRecord is one merged timeline item for the conversation view.
type communicationRecord struct {
	Kind      string    `json:"kind"`
	AgentID   string    `json:"agent_id,omitempty"`
	FromAgent string    `json:"from_agent,omitempty"`
	ToAgent   string    `json:"to_agent,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleGetConversation(c *gin.Context) {
	task, err := s.deps.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrTaskNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, APIResponse{Success: false, Error: err.Error()})
		return
	}

	merged := make([]communicationRecord, 0, len(task.Conversations)+len(task.AgentMessages))
	for _, entry := range task.Conversations {
		merged = append(merged, communicationRecord{
			Kind:      "conversation",
			AgentID:   entry.AgentID,
			Content:   entry.Content,
			Timestamp: entry.Timestamp,
		})
	}
	for _, msg := range task.AgentMessages {
		merged = append(merged, communicationRecord{
			Kind:      "agent_communication",
			FromAgent: msg.FromAgent,
			ToAgent:   msg.ToAgent,
			Content:   msg.Message,
			Timestamp: msg.Timestamp,
		})
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data: gin.H{
			"conversations":        task.Conversations,
			"agent_communications": task.AgentMessages,
			"all_communications":   merged,
		},
	})
}

func (s *Server) handleCancelTask(c *gin.Context) {
	taskID := c.Param("id")
	if err := s.deps.Engine.Cancel(taskID); err != nil {
		c.JSON(http.StatusNotFound, APIResponse{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, APIResponse{
		Success: true,
		Data:    gin.H{"task_id": taskID, "cancelling": true},
	})
}
