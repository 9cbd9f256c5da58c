package engine

// Built-in transforms and sinks register themselves on import.
import (
	_ "taskflow/internal/transform/concat"
	_ "taskflow/internal/transform/filter"
	_ "taskflow/internal/transform/gofmt"
	_ "taskflow/internal/transform/jsonx"
	_ "taskflow/internal/transform/lint"
	_ "taskflow/internal/transform/luascript"
	_ "taskflow/internal/transform/rename"
	_ "taskflow/sink/clean"
	_ "taskflow/sink/dest"
	_ "taskflow/sink/kafka"
	_ "taskflow/sink/stdout"
)
