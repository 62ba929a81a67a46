package toolsurface

import (
	"context"

	"github.com/livememory/livememory/internal/backup"
	"github.com/livememory/livememory/internal/spaces"
	"github.com/mark3labs/mcp-go/mcp"
)

// BackupTool implements the backup_* tool group.
type BackupTool struct {
	backup *backup.Service
	spaces *spaces.Repo
}

// NewBackupTool builds the backup tool group.
func NewBackupTool(backupService *backup.Service, spaceRepo *spaces.Repo) *BackupTool {
	return &BackupTool{backup: backupService, spaces: spaceRepo}
}

func (t *BackupTool) spaceExists(ctx context.Context, spaceID string) (bool, error) {
	_, err := t.spaces.GetMeta(ctx, spaceID)
	if err == spaces.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *BackupTool) CreateDefinition() mcp.Tool {
	return mcp.NewTool("backup_create",
		mcp.WithDescription("Snapshot every object under a space into a timestamped backup prefix."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
		mcp.WithString("description", mcp.Description("Short description of this snapshot")),
	)
}

func (t *BackupTool) HandleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	spaceID := req.GetString("space_id", "")
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}
	if r := requireWrite(id); r != nil {
		return r, nil
	}

	description := req.GetString("description", "")
	backupID, err := t.backup.Create(ctx, spaceID, description)
	if err == backup.ErrNotFound {
		return notFound("space " + spaceID + " has no objects to back up"), nil
	}
	if err != nil {
		return errStatus(err.Error()), nil
	}
	return created(map[string]interface{}{"backup_id": backupID}), nil
}

func (t *BackupTool) ListDefinition() mcp.Tool {
	return mcp.NewTool("backup_list",
		mcp.WithDescription("List backups within the caller's scope, optionally restricted to one space."),
		mcp.WithString("space_id", mcp.Description("Restrict to one space id")),
	)
}

func (t *BackupTool) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	spaceID := req.GetString("space_id", "")
	if spaceID != "" {
		if r := requireAccess(id, spaceID); r != nil {
			return r, nil
		}
	}

	listings, err := t.backup.List(ctx, spaceID, id.SpaceIDs)
	if err != nil {
		return errStatus(err.Error()), nil
	}
	out := make([]map[string]interface{}, len(listings))
	for i, l := range listings {
		out[i] = map[string]interface{}{
			"backup_id":   l.BackupID,
			"space_id":    l.Meta.SpaceID,
			"description": l.Meta.Description,
			"created_at":  l.Meta.CreatedAt,
		}
	}
	return ok(map[string]interface{}{"backups": out}), nil
}

func (t *BackupTool) DownloadDefinition() mcp.Tool {
	return mcp.NewTool("backup_download",
		mcp.WithDescription("Download one backup snapshot as a base64 tar.gz archive."),
		mcp.WithString("backup_id", mcp.Required(), mcp.Description("Backup id, \"<space>/<YYYY-MM-DDTHH-MM-SS>\"")),
	)
}

func (t *BackupTool) HandleDownload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	backupID := req.GetString("backup_id", "")
	spaceID, _, err := backup.SplitBackupID(backupID)
	if err != nil {
		return errStatus("invalid backup_id"), nil
	}
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}

	archive, err := t.backup.Download(ctx, backupID)
	if err == backup.ErrNotFound {
		return notFound("backup " + backupID + " not found"), nil
	}
	if err != nil {
		return errStatus(err.Error()), nil
	}
	return ok(map[string]interface{}{"archive_base64": archive}), nil
}

func (t *BackupTool) RestoreDefinition() mcp.Tool {
	return mcp.NewTool("backup_restore",
		mcp.WithDescription("Restore a backup snapshot into a new space of the same id. Admin only; refuses if the space already exists."),
		mcp.WithString("backup_id", mcp.Required(), mcp.Description("Backup id, \"<space>/<YYYY-MM-DDTHH-MM-SS>\"")),
	)
}

func (t *BackupTool) HandleRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	backupID := req.GetString("backup_id", "")
	spaceID, _, err := backup.SplitBackupID(backupID)
	if err != nil {
		return errStatus("invalid backup_id"), nil
	}
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}
	if r := requireAdmin(id); r != nil {
		return r, nil
	}

	if err := t.backup.Restore(ctx, backupID, t.spaceExists); err != nil {
		switch err {
		case backup.ErrInvalidID:
			return errStatus("invalid backup_id"), nil
		case backup.ErrNotFound:
			return notFound("backup " + backupID + " not found"), nil
		case backup.ErrAlreadyExists:
			return alreadyExists("destination space already exists"), nil
		default:
			return errStatus(err.Error()), nil
		}
	}
	return ok(map[string]interface{}{"backup_id": backupID}), nil
}

func (t *BackupTool) DeleteDefinition() mcp.Tool {
	return mcp.NewTool("backup_delete",
		mcp.WithDescription("Delete a backup snapshot. Admin only."),
		mcp.WithString("backup_id", mcp.Required(), mcp.Description("Backup id, \"<space>/<YYYY-MM-DDTHH-MM-SS>\"")),
	)
}

func (t *BackupTool) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	backupID := req.GetString("backup_id", "")
	spaceID, _, err := backup.SplitBackupID(backupID)
	if err != nil {
		return errStatus("invalid backup_id"), nil
	}
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}
	if r := requireAdmin(id); r != nil {
		return r, nil
	}

	if err := t.backup.Delete(ctx, backupID); err != nil {
		if err == backup.ErrInvalidID {
			return errStatus("invalid backup_id"), nil
		}
		return errStatus(err.Error()), nil
	}
	return deleted(map[string]interface{}{"backup_id": backupID}), nil
}
