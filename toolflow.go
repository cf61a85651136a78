// Package toolflow provides a tool execution and orchestration engine:
// a managed invocation lifecycle with hooks, timeouts, and transformation
// pipelines; a dependency-aware parallel plan scheduler; and a
// multi-strategy scored tool selector with a validity-checked cache.
//
// The engine does not know what tools do. Anything satisfying the Tool
// contract (and optionally Validator and MetadataProvider) can be
// registered in a Catalog and driven by an Executor, a PlanRunner, or
// ranked by a Selector:
//
//	catalog := toolflow.NewCatalog()
//	catalog.Register(myTool)
//
//	exec := toolflow.NewExecutor(toolflow.ExecutorConfig{Catalog: catalog})
//	res, _ := exec.Execute(ctx, myTool, params, nil)
//
// Observability is event-driven: every lifecycle transition emits an
// Event which can be handled inline, fanned out via the bus package, or
// bridged to OpenTelemetry via the otel package.
package toolflow

// Version is the toolflow library version.
const Version = "0.3.0"
