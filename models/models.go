package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// Database schema overview:
// 1. users - accounts with profile fields and the per-user session counter
// 2. refresh_tokens - hashed refresh tokens for bearer auth
// 3. interview_sessions - one row per submitted session, answers embedded as JSON
// 4. analysis_samples - per-snapshot analyzer output, tagged with session_count
// 5. emotion_averages - per-session aggregate, upserted on (user_id, session_count)
// 6. session_results - denormalized read view written once per submission
