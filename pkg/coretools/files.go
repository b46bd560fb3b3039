package coretools

import (
	"context"
	"fmt"
	"strings"

	"github.com/adrianhoehne/nanobot/pkg/dispatcher"
)

func readFileTool(opts Options) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "read_file",
		Description: "Read a file from the workspace.",
		Parameters: []dispatcher.ToolParameter{
			{Name: "path", Type: "string", Description: "Path relative to the workspace root", Required: true},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (string, error) {
			path, _ := args["path"].(string)

			exists, err := opts.Store.Exists(path)
			if err != nil {
				return "", mapPathError(err)
			}
			if !exists {
				return "", dispatcher.Errorf(dispatcher.KindNotFound, "path", "file %s does not exist", path)
			}

			return opts.Store.Read(path)
		},
	}
}

func writeFileTool(opts Options) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "write_file",
		Description: "Write content to a workspace file, creating it if needed.",
		Parameters: []dispatcher.ToolParameter{
			{Name: "path", Type: "string", Description: "Path relative to the workspace root", Required: true},
			{Name: "content", Type: "string", Description: "File content", Required: true},
			{Name: "append", Type: "boolean", Description: "Append instead of overwrite (default false)", Required: false},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (string, error) {
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)
			appendMode, _ := args["append"].(bool)

			var err error
			if appendMode {
				err = opts.Store.Append(path, content)
			} else {
				err = opts.Store.Write(path, content)
			}
			if err != nil {
				return "", mapPathError(err)
			}

			verb := "wrote"
			if appendMode {
				verb = "appended"
			}
			return fmt.Sprintf("%s %d bytes to %s", verb, len(content), path), nil
		},
	}
}

func editFileTool(opts Options) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "edit_file",
		Description: "Replace text in a workspace file.",
		Parameters: []dispatcher.ToolParameter{
			{Name: "path", Type: "string", Description: "Path relative to the workspace root", Required: true},
			{Name: "search", Type: "string", Description: "Text to search for", Required: true},
			{Name: "replace", Type: "string", Description: "Replacement text", Required: true},
			{Name: "replace_all", Type: "boolean", Description: "Replace all occurrences (default false)", Required: false},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (string, error) {
			path, _ := args["path"].(string)
			search, _ := args["search"].(string)
			replace, _ := args["replace"].(string)
			replaceAll, _ := args["replace_all"].(bool)

			if search == "" {
				return "", dispatcher.Errorf(dispatcher.KindValidation, "search", "search text is required")
			}

			exists, err := opts.Store.Exists(path)
			if err != nil {
				return "", mapPathError(err)
			}
			if !exists {
				return "", dispatcher.Errorf(dispatcher.KindNotFound, "path", "file %s does not exist", path)
			}

			occurrences := 0
			err = opts.Store.ReadModifyWrite(path, func(current string) (string, error) {
				if replaceAll {
					occurrences = strings.Count(current, search)
					return strings.ReplaceAll(current, search, replace), nil
				}
				idx := strings.Index(current, search)
				if idx < 0 {
					return current, nil
				}
				occurrences = 1
				return current[:idx] + replace + current[idx+len(search):], nil
			})
			if err != nil {
				return "", mapPathError(err)
			}
			if occurrences == 0 {
				return "", dispatcher.Errorf(dispatcher.KindNotFound, "search", "search text not found in %s", path)
			}

			return fmt.Sprintf("replaced %d occurrence(s) in %s", occurrences, path), nil
		},
	}
}

func listDirTool(opts Options) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "list_dir",
		Description: "List entries of a workspace directory.",
		Parameters: []dispatcher.ToolParameter{
			{Name: "path", Type: "string", Description: "Directory relative to the workspace root (default: root)", Required: false},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (string, error) {
			path, _ := args["path"].(string)
			if path == "" {
				path = "."
			}

			entries, err := opts.Store.List(path)
			if err != nil {
				return "", mapPathError(err)
			}
			if len(entries) == 0 {
				return "(empty)", nil
			}
			return strings.Join(entries, "\n"), nil
		},
	}
}

// mapPathError surfaces workspace path failures as validation errors; a path
// the store refuses is caller input, not an internal fault.
func mapPathError(err error) error {
	if strings.Contains(err.Error(), "outside workspace root") {
		return dispatcher.Errorf(dispatcher.KindValidation, "path", "%s", err.Error())
	}
	return err
}
