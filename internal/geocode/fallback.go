package geocode

type coords struct{ lat, lng float64 }

// fallback resolves the places that show up most in attack reports without a
// network call. Keys are lowercase.
var fallback = map[string]coords{
	// countries
	"iran":                 {32.65, 54.56},
	"israel":               {31.50, 34.80},
	"iraq":                 {33.10, 44.17},
	"syria":                {34.80, 38.99},
	"lebanon":              {33.85, 35.86},
	"qatar":                {25.33, 51.23},
	"bahrain":              {26.07, 50.55},
	"kuwait":               {29.38, 47.99},
	"jordan":               {31.17, 36.94},
	"yemen":                {15.55, 48.52},
	"uae":                  {24.00, 54.00},
	"united arab emirates": {24.00, 54.00},
	"saudi arabia":         {24.71, 46.68},

	// cities
	"tehran":    {35.69, 51.39},
	"tel aviv":  {32.08, 34.78},
	"jerusalem": {31.77, 35.21},
	"haifa":     {32.79, 34.99},
	"shiraz":    {29.59, 52.58},
	"isfahan":   {32.65, 51.68},
	"baghdad":   {33.31, 44.39},
	"erbil":     {36.19, 44.01},
	"damascus":  {33.51, 36.29},
	"beirut":    {33.89, 35.50},
	"sanaa":     {15.37, 44.19},
	"hodeidah":  {14.80, 42.95},
	"doha":      {25.29, 51.53},
	"riyadh":    {24.71, 46.68},
	"dubai":     {25.20, 55.27},
	"abu dhabi": {24.45, 54.38},
	"chabahar":  {25.29, 60.64},
	"dezful":    {32.38, 48.40},
	"minab":     {27.10, 57.08},
	"abiyek":    {36.04, 50.52},
	"tabriz":    {38.08, 46.29},
	"ahvaz":     {31.32, 48.69},
	"khomein":   {33.64, 50.08},
	"natanz":    {33.51, 51.92},
	"fordow":    {34.88, 50.99},

	// regions
	"central israel":       {31.90, 34.80},
	"northern israel":      {33.06, 35.24},
	"southern israel":      {31.25, 34.79},
	"southern iran":        {29.00, 54.00},
	"southern lebanon":     {33.54, 35.37},
	"northern qatar":       {25.98, 51.38},
	"eastern saudi arabia": {26.42, 50.10},
	"gaza":                 {31.50, 34.47},
	"gaza strip":           {31.50, 34.47},
	"galilee":              {32.88, 35.30},
	"golan heights":        {33.00, 35.75},
	"west bank":            {31.95, 35.30},
	"persian gulf":         {26.00, 52.00},
	"gulf region":          {26.00, 52.00},
	"arabian sea":          {15.00, 65.00},
	"red sea":              {20.00, 38.00},
	"bab el-mandeb":        {12.58, 43.33},
	"strait of hormuz":     {26.56, 56.25},
	"middle east":          {29.00, 47.00},
	"middle east region":   {29.00, 47.00},

	// US bases
	"al udeid":                     {25.12, 51.32},
	"ain al-asad":                  {33.80, 42.44},
	"us military base in kuwait":   {29.39, 47.54},
	"us military base in qatar":    {25.12, 51.32},
	"us military bases":            {29.00, 47.00},
	"american bases in the region": {29.00, 47.00},

	// maritime and composite
	"gulf or red sea":               {23.00, 43.00},
	"gulf or arabian sea region":    {24.00, 58.00},
	"unspecified maritime location": {26.00, 56.00},
	"israel-lebanon border region":  {33.10, 35.30},
	"israel-lebanon border":         {33.10, 35.30},
}

// skip lists location values that cannot be placed on a map.
var skip = map[string]bool{
	"":                   true,
	"unknown":            true,
	"multiple locations": true,
	"various locations":  true,
	"unspecified":        true,
	"region":             true,
}
