/*
Package sequencer is the real-time core of an audio sequencer.

Concept

The engine runs a tree of threads. The main thread watches its children,
the task thread applies submitted tasks and the audio thread streams one
buffer of every track per tick:

    main
    ├── task
    └── audio

Tracks are audios with input pads and output lines. Every track has a
recall container: templates of processing units are instantiated as runs
when a sound scope is invoked. Runs bind dependencies on runs of other
kinds, the nearest one in the recycling context lineage wins.

Tasks

Structural changes are never applied from the caller goroutine. They are
wrapped into tasks and submitted to the engine:

    e.Submit(e.AddTrack("drums", 2, 4))
    p := e.StartPlayback("drums", audio.Sequencer)
    e.Submit(p)

The task thread holds the write side of the graph lock while tasks are
launched. The audio thread holds the read side while buffers are
streamed, so a task never observes a half-processed buffer.

Offline

Engine can be driven without threads. Render launches task ticks and
streams buffers on the caller goroutine:

    e.Render(ctx, 100)
*/
package sequencer
