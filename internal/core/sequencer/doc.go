// Package sequencer runs an ordered pipeline of deployment steps.
//
// A Pipeline is a flat list of Steps executed strictly in order. Each Step
// carries its failure policy as data: a fatal step that fails halts the run,
// a warn step that fails is logged and the run continues. A Step is made of
// one or more Tasks; a Task may declare a readiness Probe which is polled with
// a fixed RetryPolicy after the task's action has run.
//
// Waiting goes through the Clock interface so polling and settle delays are
// deterministic under test.
//
// # Usage
//
//	seq := sequencer.New(sequencer.RealClock{}, logger)
//	report, err := seq.Run(ctx, sequencer.Pipeline{Steps: steps})
//	if err != nil {
//	    var dErr *sequencer.DeployError
//	    errors.As(err, &dErr) // dErr.Step names the failing step
//	}
package sequencer
