package service

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// UploadPolicy decides with a CEL expression which file parts are stored.
// The expression sees `file` (name, ext, content_type, size) and `user`
// (id, email) and must return a bool, for example:
//
//	file.ext in ["png", "jpg", "jpeg", "gif"] && file.content_type.startsWith("image/")
//
// file.size is the part's declared Content-Length and -1 when the part does
// not declare one, which is what browsers send. Size caps belong in
// UPLOAD_MAX_BYTES. An empty expression accepts everything.
type UploadPolicy struct {
	expr string
	prg  cel.Program
}

// UploadSubject is what the policy is evaluated against
type UploadSubject struct {
	Filename    string
	ContentType string
	Size        int64 // -1 when undeclared
	UserID      string
	UserEmail   string
}

// NewUploadPolicy compiles expr once
func NewUploadPolicy(expr string) (*UploadPolicy, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &UploadPolicy{}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("file", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("user", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("upload policy must return bool, got %s", out)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &UploadPolicy{expr: expr, prg: prg}, nil
}

// Allow reports whether the part may be stored
func (p *UploadPolicy) Allow(s UploadSubject) (bool, error) {
	if p == nil || p.prg == nil {
		return true, nil
	}

	out, _, err := p.prg.Eval(map[string]interface{}{
		"file": map[string]interface{}{
			"name":         s.Filename,
			"ext":          strings.ToLower(Extension(s.Filename)),
			"content_type": s.ContentType,
			"size":         s.Size,
		},
		"user": map[string]string{
			"id":    s.UserID,
			"email": s.UserEmail,
		},
	})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean, got %T", out.Value())
	}
	return allowed, nil
}

// String returns the source expression
func (p *UploadPolicy) String() string {
	return p.expr
}
