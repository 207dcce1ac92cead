// Package types provides shared data structures for the chat sync service.
//
// Core Types:
//   - Session: Titled conversation held in the recent list or a folder
//   - Message: Transcript entry, possibly a streaming job placeholder
//   - MessagePatch, SessionPatch: Partial updates applied as whole-document replacements
//   - Folder: Session container
//
// Job Types:
//   - JobRequest, JobDetail: Job backend payloads
//   - JobStatus, Phase: Backend status and its pending/completed/failed reduction
//
// Example Usage:
//
//	msg := types.Message{
//	    ID:          string(id.NewMessageID()),
//	    Role:        types.RoleAssistant,
//	    Kind:        types.KindImage,
//	    IsStreaming: true,
//	}
package types
