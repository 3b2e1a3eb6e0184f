package devtools

import (
	"go.uber.org/fx"
)

var Module = fx.Module("devtools",
	fx.Provide(
		NewInspector,
	),
)
