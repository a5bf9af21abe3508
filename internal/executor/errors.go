package executor

import (
	"errors"
	"fmt"
)

// SkipError 校验期终止：不执行、不落记录、不重试
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return e.Reason
}

func skip(format string, args ...interface{}) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// IsSkip 判断是否为校验期跳过
func IsSkip(err error) bool {
	var se *SkipError
	return errors.As(err, &se)
}
