package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

// maxReadChars caps the content returned by read_file.
const maxReadChars = 64 * 1024

var noFiles = domain.Fail("file access is not available")

// FileTools returns the workspace file tools.
func FileTools() []Tool {
	return []Tool{
		{
			Name:        "list_files",
			Description: "List the entries of a workspace directory.",
			Params: map[string]Param{
				"path": {Type: "string", Description: "directory to list, defaults to the workspace root"},
			},
			Handler: listFiles,
		},
		{
			Name:        "read_file",
			Description: "Read a text file from the workspace.",
			Params: map[string]Param{
				"path": {Type: "string", Required: true, Description: "file to read"},
			},
			Handler: readFile,
		},
		{
			Name:        "write_file",
			Description: "Create or overwrite a text file in the workspace.",
			Params: map[string]Param{
				"path":    {Type: "string", Required: true, Description: "file to write"},
				"content": {Type: "string", Required: true, Description: "full file content"},
			},
			Handler: writeFile,
		},
		{
			Name:        "create_directory",
			Description: "Create a directory, including missing parents.",
			Params: map[string]Param{
				"path": {Type: "string", Required: true},
			},
			Handler: createDirectory,
		},
		{
			Name:        "delete_file",
			Description: "Delete a file or an empty directory.",
			Params: map[string]Param{
				"path": {Type: "string", Required: true},
			},
			Handler: deleteFile,
		},
	}
}

func listFiles(_ context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	if caps == nil || caps.Files == nil {
		return noFiles, nil
	}
	path, err := OptString(args, "path", ".")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	entries, err := caps.Files.List(path)
	if err != nil {
		return fileFailure(path, err), nil
	}
	return domain.OK(fmt.Sprintf("%d entries in %s", len(entries), path), map[string]any{
		"path":    path,
		"entries": entries,
	}), nil
}

func readFile(_ context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	if caps == nil || caps.Files == nil {
		return noFiles, nil
	}
	path, err := StringArg(args, "path")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	content, err := caps.Files.Read(path)
	if err != nil {
		return fileFailure(path, err), nil
	}
	truncated := false
	if len(content) > maxReadChars {
		content = truncate(content, maxReadChars)
		truncated = true
	}
	return domain.OK(fmt.Sprintf("Read %s (%d bytes)", path, len(content)), map[string]any{
		"path":      path,
		"content":   content,
		"truncated": truncated,
	}), nil
}

func writeFile(_ context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	if caps == nil || caps.Files == nil {
		return noFiles, nil
	}
	path, err := StringArg(args, "path")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	content, err := RawString(args, "content")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	if err := caps.Files.Write(path, content); err != nil {
		return fileFailure(path, err), nil
	}
	return domain.OK(fmt.Sprintf("Wrote %d bytes to %s", len(content), path), map[string]any{"path": path}), nil
}

func createDirectory(_ context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	if caps == nil || caps.Files == nil {
		return noFiles, nil
	}
	path, err := StringArg(args, "path")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	if err := caps.Files.Mkdir(path); err != nil {
		return fileFailure(path, err), nil
	}
	return domain.OK("Created directory "+path, map[string]any{"path": path}), nil
}

func deleteFile(_ context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	if caps == nil || caps.Files == nil {
		return noFiles, nil
	}
	path, err := StringArg(args, "path")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	if err := caps.Files.Remove(path); err != nil {
		return fileFailure(path, err), nil
	}
	return domain.OK("Deleted "+path, map[string]any{"path": path}), nil
}

func fileFailure(path string, err error) domain.ToolResult {
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Fail("ENOENT: " + path)
	}
	return domain.Fail(err.Error())
}
