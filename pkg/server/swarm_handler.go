// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/swarmhive/swarmd/pkg/swarm"
)

// submitSwarmRequest is the body of POST /v1/swarm.
type submitSwarmRequest struct {
	Task      string         `json:"task"`
	MaxAgents int            `json:"max_agents,omitempty"`
	Topology  swarm.Topology `json:"topology,omitempty"`
	Context   []string       `json:"context,omitempty"`
	DeadlineS int            `json:"deadline_seconds,omitempty"`
}

type submitSwarmResponse struct {
	TaskID       string              `json:"task_id"`
	Status       swarm.TaskStatus    `json:"status"`
	Result       string              `json:"result,omitempty"`
	Partial      bool                `json:"partial,omitempty"`
	AgentReports []swarm.AgentReport `json:"agent_reports,omitempty"`
}

func (s *Server) handleSubmitSwarm(w http.ResponseWriter, r *http.Request) {
	var req submitSwarmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, swarm.NewError("server.handleSubmitSwarm", swarm.KindInvalidInput, err))
		return
	}
	if req.Task == "" {
		writeError(w, swarm.NewError("server.handleSubmitSwarm", swarm.KindInvalidInput, fmt.Errorf("task cannot be empty")))
		return
	}

	task := swarm.NewTask(req.Task, req.Topology)
	task.MaxAgents = req.MaxAgents
	task.Context = req.Context
	if req.DeadlineS > 0 {
		task.Deadline = time.Now().Add(time.Duration(req.DeadlineS) * time.Second)
	}

	if err := s.coordinator.Run(r.Context(), task); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submitSwarmResponse{
		TaskID:       task.ID,
		Status:       task.Status,
		Result:       task.Result,
		Partial:      task.Partial,
		AgentReports: task.AgentReports,
	})
}
