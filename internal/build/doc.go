// Package build executes the rendered steps of one recipe.
//
// Steps run in order against a working directory, a source directory, and
// an install directory. Run and autotools steps invoke external tools
// through the runtime package; delete steps remove paths inside the work or
// install directory; license steps record the component's license and
// install a local license file next to the component.
//
// Tool output is appended to "build.log" in the work directory, and the
// tail of it is attached to the error when a tool fails. Execution stops at
// the first failing step and nothing is rolled back. Errors name the failing
// step by its 1-based position and description, such as
// "step 2 (run make): ...".
//
// Environment variables accumulate: every tool sees the base environment of
// the runtime, then the variables seeded by the caller, then the variables
// declared on the step itself.
//
// Example usage:
//
//	report, err := build.Execute(ctx, rt, plan.Steps, build.Env{
//	    Name:       plan.Name,
//	    WorkDir:    plan.WorkDir,
//	    SourceDir:  plan.SourceDir,
//	    InstallDir: plan.InstallDir,
//	    Vars:       map[string]string{"PREFIX": plan.InstallDir},
//	})
//	if err != nil {
//	    return err
//	}
package build
