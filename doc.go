// Package telemetrygate is an ingestion gateway for battery-powered IoT
// trackers. Devices push protobuf-encoded uplinks over CoAP; the gateway
// decodes them, streams live telemetry to WebSocket subscribers, persists
// the sections to the backend store and answers every device with the
// current downlink policy.
//
// # Architecture
//
// The gateway is a fixed four-stage pipeline, wired once at startup:
//
//	┌──────────────┐   POST /uplink   ┌──────────────┐
//	│   Devices    │ ───────────────▶ │ gateway/coap │
//	│  (CoAP/UDP)  │ ◀─────────────── │    intake    │
//	└──────────────┘  downlink reply  └──────┬───────┘
//	                                         │ raw payload
//	                                         ▼
//	                                  ┌──────────────┐
//	                                  │    ingest    │  decode (wire),
//	                                  │ orchestrator │  derive events
//	                                  └──┬───────┬───┘
//	                     live events     │       │   backend writes
//	              ┌──────────────────────┘       └──────────────┐
//	              ▼                                             ▼
//	       ┌─────────────┐    ┌──────────────┐          ┌─────────────┐
//	       │     hub     │    │ output/nats  │          │   persist   │
//	       │ (WebSocket  │    │   (mirror,   │          │ coordinator │
//	       │ subscribers)│    │   optional)  │          │ (supabase)  │
//	       └─────────────┘    └──────────────┘          └─────────────┘
//
// Live delivery is best effort and never blocks intake; persistence runs
// the device configuration upsert first, then the remaining appends
// concurrently, and reports per-operation outcomes instead of failing the
// batch.
//
// The cmd/gateway binary assembles the pipeline from a JSON configuration;
// cmd/activation-codes is an offline tool that issues HMAC-derived device
// activation codes and QR code labels against the same backend.
package telemetrygate
