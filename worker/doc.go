// Package worker runs independent codelist jobs in parallel.
//
// Every codelist is normalized by its own job; a failing job never stops
// the others. Two front ends share the same Func:
//
//	// Run a fixed set of jobs and collect ordered results
//	batch := worker.NewBatch(fn, 4)
//	res := batch.Run(ctx, []worker.Job{{ID: "dosageForm"}, {ID: "container"}})
//
//	// Or keep a pool around and submit jobs as they come
//	pool := worker.NewPool(fn, 2)
//	defer pool.Close()
//	pool.Submit(worker.Job{ID: "container"})
//	result := <-pool.Results()
package worker
