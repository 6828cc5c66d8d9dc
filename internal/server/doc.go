// Package server exposes the provenance store over HTTP JSON.
//
// Routes:
//
//	POST /v1/assets                    store assets          {"assets":[{type,payload}]}
//	POST /v1/assets:get                fetch assets          {"ids":[...]}
//	POST /v1/runs                      register a run        {kind,id?,status?,runner_version?}
//	GET  /v1/runs                      list runs
//	GET  /v1/runs/{id}                 get a run
//	POST /v1/runs/{id}/status          move a run forward    {"status":"running"}
//	POST /v1/link                      append edges          {"edges":[{src_id,dst_id,relation,run_id}]}
//	GET  /v1/ledger                    select edges          ?asset=&run=&relation=&since=&limit=
//	GET  /v1/lineage/{id}/ancestors    ancestor assets
//	GET  /v1/lineage/{id}/descendants  descendant assets
//	GET  /v1/lineage/{id}/chain        explain chain and narrative
//	GET  /v1/stats                     store counts
//	GET  /metrics                      Prometheus exposition
//	GET  /healthz                      liveness
//
// Every JSON response uses one envelope: {"status":"ok","data":...} or
// {"status":"error","error":{"code":...,"message":...}}.
package server
