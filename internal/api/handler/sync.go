package handler

import (
	"context"
	"fmt"
	"net/http"

	mw "github.com/adsconnect/adsconnect/internal/api/middleware"
	"github.com/adsconnect/adsconnect/internal/api/response"
	"github.com/adsconnect/adsconnect/internal/syncer"
	"github.com/adsconnect/adsconnect/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Syncer runs profile and campaign synchronization inline.
type Syncer interface {
	SyncProfiles(ctx context.Context, userID string) (*syncer.ProfileSyncResult, error)
	SyncCampaigns(ctx context.Context, userID, profileID string) (*syncer.CampaignSyncResult, error)
}

// TaskQueue accepts background sync tasks.
type TaskQueue interface {
	Enqueue(ctx context.Context, task *models.SyncTask) error
}

// TaskStatus looks up the last recorded status of a task.
type TaskStatus interface {
	GetTaskStatus(ctx context.Context, taskID uuid.UUID) (string, bool, error)
}

type syncRequest struct {
	UserID    string `json:"userId"`
	ProfileID string `json:"profileId"`
}

type profileSyncResponse struct {
	response.Body
	Profiles int `json:"profiles"`
}

// NewSyncProfilesHandler returns an http.HandlerFunc for POST /api/v1/sync/profiles.
func NewSyncProfilesHandler(svc Syncer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req syncRequest
		if err := decodeBody(r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
			return
		}
		userID, err := mw.ResolveUserID(r, req.UserID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		result, err := svc.SyncProfiles(r.Context(), userID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		response.JSON(w, profileSyncResponse{
			Body:     response.OK(fmt.Sprintf("Synced %d advertiser profiles", result.Count)),
			Profiles: result.Count,
		})
	}
}

type campaignSyncResponse struct {
	response.Body
	*syncer.CampaignSyncResult
}

// NewSyncCampaignsHandler returns an http.HandlerFunc for POST /api/v1/sync/campaigns.
// Per-profile failures are reported in the body; the status stays 200.
func NewSyncCampaignsHandler(svc Syncer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req syncRequest
		if err := decodeBody(r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
			return
		}
		userID, err := mw.ResolveUserID(r, req.UserID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		result, err := svc.SyncCampaigns(r.Context(), userID, req.ProfileID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		message := fmt.Sprintf("Synced campaigns for %d profiles", len(result.Results))
		if result.ProfilesWithErrors > 0 {
			message = fmt.Sprintf("%s, %d failed", message, result.ProfilesWithErrors)
		}
		response.JSON(w, campaignSyncResponse{Body: response.OK(message), CampaignSyncResult: result})
	}
}

type taskRequest struct {
	Kind      string `json:"kind"`
	UserID    string `json:"userId"`
	ProfileID string `json:"profileId"`
}

type taskResponse struct {
	response.Body
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// NewEnqueueTaskHandler returns an http.HandlerFunc for POST /api/v1/sync/tasks.
func NewEnqueueTaskHandler(q TaskQueue, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req taskRequest
		if err := decodeBody(r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
			return
		}
		if req.Kind != models.TaskKindSyncProfiles && req.Kind != models.TaskKindSyncCampaigns {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				fmt.Sprintf("kind must be %q or %q", models.TaskKindSyncProfiles, models.TaskKindSyncCampaigns))
			return
		}
		userID, err := mw.ResolveUserID(r, req.UserID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		task := models.NewSyncTask(req.Kind, userID, req.ProfileID)
		if err := q.Enqueue(r.Context(), task); err != nil {
			writeError(w, r, logger, err)
			return
		}

		response.Accepted(w, taskResponse{
			Body:   response.OK("Sync task queued"),
			TaskID: task.ID.String(),
			Status: models.TaskStatusQueued,
		})
	}
}

// NewTaskStatusHandler returns an http.HandlerFunc for GET /api/v1/sync/tasks/{taskID}.
func NewTaskStatusHandler(statuses TaskStatus, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "taskID must be a valid UUID")
			return
		}

		status, found, err := statuses.GetTaskStatus(r.Context(), taskID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		if !found {
			response.Error(w, http.StatusNotFound, "TASK_NOT_FOUND", "Task not found or expired")
			return
		}

		response.JSON(w, taskResponse{Body: response.OK(""), TaskID: taskID.String(), Status: status})
	}
}
