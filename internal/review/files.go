package review

import (
	"fmt"
	"strings"

	"github.com/dshills/reviewgraph/internal/github"
)

// SourceFile is a changed file prepared for review.
type SourceFile struct {
	Path      string
	Status    string
	Additions int
	Deletions int
	Language  string
	Content   string
}

func fromChangedFile(f github.ChangedFile) SourceFile {
	return SourceFile{
		Path:      f.Filename,
		Status:    f.Status,
		Additions: f.Additions,
		Deletions: f.Deletions,
		Language:  DetectLanguage(f.Filename),
		Content:   f.Content,
	}
}

// formatFiles renders files as the code listing embedded in stage prompts.
func formatFiles(files []SourceFile) string {
	var b strings.Builder
	for i, f := range files {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "**File**: %s\n**Language**: %s\n**Status**: %s (+%d/-%d)\n\n```\n%s\n```",
			f.Path, f.Language, f.Status, f.Additions, f.Deletions, f.Content)
	}
	return b.String()
}

// DemoFiles returns the sample files reviewed when no pull request is
// available. Both contain deliberate defects.
func DemoFiles() []SourceFile {
	return []SourceFile{
		{
			Path:      "calculator.py",
			Status:    github.FileModified,
			Additions: 20,
			Language:  "Python",
			Content: `def divide(a, b):
    return a / b

def calculate_average(numbers):
    total = 0
    for num in numbers:
        total = total + num
    return total / len(numbers)

class Calculator:
    def __init__(self):
        self.history = []

    def add(self, x, y):
        result = x + y
        self.history.append(f"{x} + {y} = {result}")
        return result

    def get_history(self):
        return self.history`,
		},
		{
			Path:      "user_auth.py",
			Status:    github.FileAdded,
			Additions: 25,
			Language:  "Python",
			Content: `import hashlib

def authenticate_user(username, password):
    if username == "admin" and password == "password":
        return True
    return False

def hash_password(password):
    return hashlib.md5(password.encode()).hexdigest()

def validate_input(user_input):
    return user_input

class User:
    def __init__(self, username, password):
        self.username = username
        self.password = password
        self.is_admin = False

    def login(self):
        if authenticate_user(self.username, self.password):
            self.is_admin = True
            return "Login successful"
        return "Login failed"`,
		},
	}
}
