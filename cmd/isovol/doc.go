/*
isovol reads 3D scalar-field volumes from CCP4/MRC density maps and extracts
triangulated isosurfaces, optionally offloading the extraction to worker
processes.

Documentation can be found nicely formatted at
http://godoc.org/github.com/janelia-flyem/isovol

In the following documentation, the type of brackets designate
<required parameter> and [optional parameter].

	isovol about

Prints the version number of isovol and the Go runtime it was built with.

	isovol info <map file>

Reads a density map (plain or gzip-compressed) and prints its grid extents,
sample statistics (min/max/mean/rms), a sigma table, the world-space bounding
box, and the default density floor carried by the map header.

	isovol extract [-isolevel f | -sigma k] [-smooth n] [-center x,y,z -size s] [-o file] <map file>

Extracts an isosurface and writes it as binary STL.  With neither -isolevel
nor -sigma given, the isolevel defaults to two RMS deviations above the mean
density.  -smooth n runs n volume-preserving smoothing passes over the mesh.
-center and -size together restrict extraction to the world-space box reaching
size units out from center along each axis.  The output path defaults to the
map filename with an .stl extension.

	isovol extract -workers host:port[,host:port] ... <map file>

Offloads extraction to running worker daemons.  The first request to each
worker carries a serialized snapshot of the volume; subsequent requests reuse
the worker-side session until the volume data changes.  A worker that cannot
be reached is logged and the extraction runs locally instead.

	isovol worker [-address host:port]

Runs the extraction worker daemon ("localhost:8002" by default).  Worker
replies are cached in memory; the cache capacity comes from the [cache.worker]
section of the configuration file.

All commands accept -config <file.toml>.  The file can set the worker address,
logging (a rotating log file with size and age limits), and cache sizes in
megabytes:

	[worker]
	address = "localhost:8002"

	[logging]
	logfile = "/var/log/isovol.log"
	max_log_size = 500
	max_log_age = 30

	[cache.worker]
	size = 100

Command-line flags override values read from the file.
*/
package main
