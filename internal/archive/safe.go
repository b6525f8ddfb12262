package archive

import (
	"path"
	"strings"
)

// Validates archive entry names against a target root.
//
// Names are checked in slash form relative to the root. The validator
// remembers every link entry so that later entries nested under a link, or
// replacing one, can be rejected: writing through a link would follow it to
// wherever it points, so only the link itself may occupy that path.
//
// Symlink targets are walked component by component. A target may not pass
// through a link, and the directories a target passes through may not become
// links later, so every link resolves inside the root no matter the entry
// order.
type validator struct {
	links     map[string]bool
	traversed map[string]bool
}

func newValidator() *validator {
	return &validator{
		links:     make(map[string]bool),
		traversed: make(map[string]bool),
	}
}

// Returns the cleaned root-relative path of name, or "." for the root itself.
func (v *validator) entry(name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", &UnsafeEntryError{Name: name, Reason: "name contains NUL"}
	}
	slashed := strings.ReplaceAll(name, "\\", "/")
	if path.IsAbs(slashed) || hasVolume(slashed) {
		return "", &UnsafeEntryError{Name: name, Reason: "absolute path"}
	}

	clean := cleanName(name)
	if escapes(clean) {
		return "", &UnsafeEntryError{Name: name, Reason: "path escapes the target directory"}
	}
	if clean == "." {
		return clean, nil
	}

	if v.links[clean] {
		return "", &UnsafeEntryError{Name: name, Reason: "entry replaces a link"}
	}
	for dir := path.Dir(clean); dir != "."; dir = path.Dir(dir) {
		if v.links[dir] {
			return "", &UnsafeEntryError{Name: name, Reason: "path traverses link " + dir}
		}
	}
	return clean, nil
}

// Validates a regular file or directory entry.
func (v *validator) file(name string) (string, error) {
	return v.entry(name)
}

// Validates a symbolic link entry. The target is resolved relative to the
// directory holding the link.
func (v *validator) symlink(name, target string) (string, error) {
	clean, err := v.entry(name)
	if err != nil {
		return "", err
	}
	if clean == "." {
		return "", &UnsafeEntryError{Name: name, Reason: "link replaces the target directory"}
	}

	if v.traversed[clean] {
		return "", &UnsafeEntryError{Name: name, Reason: "link replaces a directory another link resolves through"}
	}

	t := strings.ReplaceAll(target, "\\", "/")
	if t == "" || path.IsAbs(t) || hasVolume(t) {
		return "", &UnsafeEntryError{Name: name, Reason: "absolute link target " + target}
	}
	if err := v.walk(name, path.Dir(clean)+"/"+t); err != nil {
		return "", err
	}

	v.links[clean] = true
	return clean, nil
}

// Resolves the root-relative link target p one component at a time. Every
// component followed by another must be a plain directory: it may not be a
// known link and is remembered so that no later link takes its place.
func (v *validator) walk(name, p string) error {
	var parts []string
	comps := strings.Split(p, "/")
	for i, c := range comps {
		switch c {
		case "", ".":
			continue
		case "..":
			if len(parts) == 0 {
				return &UnsafeEntryError{Name: name, Reason: "link target escapes the target directory"}
			}
			parts = parts[:len(parts)-1]
			continue
		}

		parts = append(parts, c)
		if i == len(comps)-1 {
			break
		}
		dir := strings.Join(parts, "/")
		if v.links[dir] {
			return &UnsafeEntryError{Name: name, Reason: "link target resolves through link " + dir}
		}
		v.traversed[dir] = true
	}
	return nil
}

// Validates a hard link entry. Hard link targets name another entry of the
// same archive, relative to the root.
func (v *validator) hardlink(name, target string) (string, error) {
	clean, err := v.entry(name)
	if err != nil {
		return "", err
	}
	if clean == "." {
		return "", &UnsafeEntryError{Name: name, Reason: "link replaces the target directory"}
	}
	if _, err := v.entry(target); err != nil {
		return "", &UnsafeEntryError{Name: name, Reason: "hard link target is unsafe: " + target}
	}

	v.links[clean] = true
	return clean, nil
}

// Returns true if the cleaned relative path climbs above the root.
func escapes(clean string) bool {
	return clean == ".." || strings.HasPrefix(clean, "../")
}

// Returns true if p starts with a Windows drive letter.
func hasVolume(p string) bool {
	return len(p) >= 2 && p[1] == ':' &&
		(('a' <= p[0] && p[0] <= 'z') || ('A' <= p[0] && p[0] <= 'Z'))
}

// Returns name in cleaned slash form.
func cleanName(name string) string {
	return path.Clean(strings.ReplaceAll(name, "\\", "/"))
}
